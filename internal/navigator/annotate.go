package navigator

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/facecache/internal/types"
)

var (
	NewFaceColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	KnownFaceColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
)

const strokeWidth = 2

// Annotate copies frame and outlines every face: green when new, blue when known.
func Annotate(frame image.Image, faces []types.DetectedFace) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, frame, b.Min, draw.Src)

	for _, f := range faces {
		c := KnownFaceColor
		if f.IsNew {
			c = NewFaceColor
		}
		outline(out, f.Box.Rect().Intersect(b), c)
	}
	return out
}

func outline(dst *image.RGBA, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	src := &image.Uniform{C: c}
	w := strokeWidth
	if r.Dx() < 2*w || r.Dy() < 2*w {
		draw.Draw(dst, r, src, image.Point{}, draw.Src)
		return
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), // top
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), // left
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}
