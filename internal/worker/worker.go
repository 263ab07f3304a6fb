package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/andresmejia3/facecache/internal/detector"
	"github.com/andresmejia3/facecache/internal/region"
	"github.com/andresmejia3/facecache/internal/signature"
	"github.com/andresmejia3/facecache/internal/types"
)

// Factory builds the per-engine collaborators. Extractors and suppliers are
// not shared between engines.
type Factory func(ctx context.Context) (region.Supplier, signature.Extractor, error)

// Engine turns JPEG frames into face candidates. It never touches the identity
// cache, so any number of engines can run side by side.
type Engine struct {
	ID        int
	Regions   region.Supplier
	Extractor signature.Extractor
}

func NewEngine(ctx context.Context, id int, factory Factory) (*Engine, error) {
	regions, extractor, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}
	return &Engine{ID: id, Regions: regions, Extractor: extractor}, nil
}

// ProcessFrame decodes one frame and extracts its candidates.
func (e *Engine) ProcessFrame(ctx context.Context, task types.FrameTask) ([]detector.Candidate, error) {
	img, err := DecodeFrame(task.Data)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", task.Index, err)
	}
	candidates, err := detector.ExtractCandidates(ctx, e.Regions, e.Extractor, img)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", task.Index, err)
	}
	return candidates, nil
}

// DecodeFrame decodes a JPEG produced by the ffmpeg pipe.
func DecodeFrame(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

func (e *Engine) Close() error {
	return errors.Join(e.Regions.Close(), e.Extractor.Close())
}
