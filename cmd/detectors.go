package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/facecache/internal/config"
	"github.com/andresmejia3/facecache/internal/detector"
	"github.com/andresmejia3/facecache/internal/identity"
	"github.com/andresmejia3/facecache/internal/region"
	"github.com/andresmejia3/facecache/internal/signature"
	"github.com/andresmejia3/facecache/internal/vision"
)

// newSupplier builds the region supplier named by cfg.Detector.Kind.
func newSupplier(ctx context.Context, cfg *config.Config) (region.Supplier, error) {
	d := cfg.Detector
	switch d.Kind {
	case config.DetectorPigo:
		p, err := region.NewPigo(d.PigoCascade, d.Pigo)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.DetectorCascade:
		c, err := vision.NewCascade(d.CascadePath, vision.CascadeParams{
			ScaleFactor:  d.CascadeScaleFactor,
			MinNeighbors: d.CascadeMinNeighbors,
			MinSize:      d.CascadeMinSize,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.DetectorRekognition:
		r, err := region.NewRekognition(ctx, d.AWSRegion, d.MinConfidence)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.DetectorStatic:
		rects, err := config.ParseBoxes(d.Static)
		if err != nil {
			return nil, err
		}
		return region.NewStatic(rects...), nil
	}
	return nil, fmt.Errorf("unknown detector %q", d.Kind)
}

func newExtractor(cfg *config.Config) signature.Extractor {
	return vision.NewSIFTExtractor(cfg.Match.WorkingHeight)
}

// engineFactory gives every engine its own supplier and extractor.
func engineFactory(cfg *config.Config) func(ctx context.Context) (region.Supplier, signature.Extractor, error) {
	return func(ctx context.Context) (region.Supplier, signature.Extractor, error) {
		regions, err := newSupplier(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return regions, newExtractor(cfg), nil
	}
}

func newCache(cfg *config.Config) (*identity.Cache, error) {
	strategy, err := identity.ParseStrategy(cfg.Match.Strategy)
	if err != nil {
		return nil, err
	}
	return identity.New(
		identity.WithParams(cfg.MatchParams()),
		identity.WithStrategy(strategy),
		identity.WithLogger(Logger),
	), nil
}

// applyOverrides copies command-line choices over the loaded config and re-validates it.
func applyOverrides(cfg *config.Config, opts Options) error {
	if opts.Detector != "" {
		cfg.Detector.Kind = opts.Detector
	}
	if opts.Strategy != "" {
		cfg.Match.Strategy = opts.Strategy
	}
	if opts.Listen != "" {
		cfg.Review.Listen = opts.Listen
	}
	return cfg.Validate()
}

// newDetector assembles a single-threaded detector for interactive use.
func newDetector(ctx context.Context, cfg *config.Config) (*detector.Detector, error) {
	regions, err := newSupplier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache, err := newCache(cfg)
	if err != nil {
		regions.Close()
		return nil, err
	}
	return detector.New(regions, newExtractor(cfg), cache), nil
}
