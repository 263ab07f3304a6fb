// Package detector labels the face regions of a frame as new or known.
//
// A Detector chains three collaborators: a region.Supplier that locates faces,
// a signature.Extractor that describes each crop, and an identity.Cache that
// decides whether a description was seen before. Extract is free of cache side
// effects and may run concurrently; Resolve must be called in frame order.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/andresmejia3/facecache/internal/identity"
	"github.com/andresmejia3/facecache/internal/region"
	"github.com/andresmejia3/facecache/internal/signature"
	"github.com/andresmejia3/facecache/internal/types"
)

// ErrInvalidRegion is returned when a rectangle has no overlap with the frame.
var ErrInvalidRegion = errors.New("invalid face region")

// Candidate is a located face with its signature, not yet checked against the cache.
type Candidate struct {
	Box types.Box
	Sig signature.Signature
}

type Detector struct {
	regions   region.Supplier
	extractor signature.Extractor
	cache     *identity.Cache
}

func New(regions region.Supplier, extractor signature.Extractor, cache *identity.Cache) *Detector {
	if cache == nil {
		cache = identity.New()
	}
	return &Detector{regions: regions, extractor: extractor, cache: cache}
}

// DetectFaces locates faces in frame and reports, in supplier order, whether each was seen before.
// Every unseen face is admitted to the cache.
func (d *Detector) DetectFaces(ctx context.Context, frame image.Image) ([]types.DetectedFace, error) {
	candidates, err := d.Extract(ctx, frame)
	if err != nil {
		return nil, err
	}
	return d.Resolve(candidates), nil
}

// Extract locates faces and computes their signatures without touching the cache.
func (d *Detector) Extract(ctx context.Context, frame image.Image) ([]Candidate, error) {
	return ExtractCandidates(ctx, d.regions, d.extractor, frame)
}

// ExtractCandidates is Extract for callers that own their supplier and extractor,
// such as pipeline workers that never see the cache.
func ExtractCandidates(ctx context.Context, regions region.Supplier, extractor signature.Extractor, frame image.Image) ([]Candidate, error) {
	rects, err := regions.DetectRegions(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to locate faces: %w", err)
	}

	candidates := make([]Candidate, 0, len(rects))
	for _, r := range rects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop, err := Crop(frame, r)
		if err != nil {
			return nil, err
		}
		sig, err := extractor.Extract(crop)
		if err != nil {
			return nil, fmt.Errorf("failed to extract signature for %v: %w", types.BoxFromRect(r), err)
		}
		candidates = append(candidates, Candidate{Box: types.BoxFromRect(r), Sig: sig})
	}
	return candidates, nil
}

// Resolve runs every candidate through the cache in order.
func (d *Detector) Resolve(candidates []Candidate) []types.DetectedFace {
	return Resolve(d.cache, candidates)
}

// Resolve labels candidates against cache, admitting the unseen ones.
func Resolve(cache *identity.Cache, candidates []Candidate) []types.DetectedFace {
	faces := make([]types.DetectedFace, 0, len(candidates))
	for _, c := range candidates {
		known := cache.MatchOrAdmit(c.Sig)
		faces = append(faces, types.DetectedFace{IsNew: !known, Box: c.Box})
	}
	return faces
}

func (d *Detector) ClearCache() { d.cache.Clear() }

func (d *Detector) CacheSize() int { return d.cache.Size() }

// Close releases the supplier and the extractor.
func (d *Detector) Close() error {
	return errors.Join(d.regions.Close(), d.extractor.Close())
}

// Cache exposes the underlying identity cache.
func (d *Detector) Cache() *identity.Cache { return d.cache }

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of frame inside r. The result shares pixels with frame
// when the image type supports it.
func Crop(frame image.Image, r image.Rectangle) (image.Image, error) {
	clipped := r.Canon().Intersect(frame.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("%w: %v outside %v", ErrInvalidRegion, types.BoxFromRect(r), frame.Bounds())
	}
	if si, ok := frame.(subImager); ok {
		return si.SubImage(clipped), nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, clipped.Dx(), clipped.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, clipped.Min, draw.Src)
	return dst, nil
}
