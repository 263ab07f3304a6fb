// Package region provides the face localisation step that feeds the identity cache.
// A Supplier only returns rectangles; it carries no notion of identity.
package region

import (
	"context"
	"image"
)

// Supplier finds candidate face rectangles in a frame.
// Returned rectangles are ordered, non-empty and clipped to the frame bounds.
type Supplier interface {
	DetectRegions(ctx context.Context, frame image.Image) ([]image.Rectangle, error)
	Close() error
}

// Clip canonicalises every rectangle, clips it to bounds and drops those left empty.
// Order is preserved.
func Clip(rects []image.Rectangle, bounds image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		r = r.Canon().Intersect(bounds)
		if r.Empty() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Static returns the same rectangles for every frame.
type Static struct {
	Rects []image.Rectangle
}

// NewStatic creates a Static supplier.
func NewStatic(rects ...image.Rectangle) *Static {
	return &Static{Rects: rects}
}

func (s *Static) DetectRegions(_ context.Context, frame image.Image) ([]image.Rectangle, error) {
	return Clip(s.Rects, frame.Bounds()), nil
}

func (s *Static) Close() error { return nil }
