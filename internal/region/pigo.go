package region

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// PigoParams holds the cascade search parameters.
type PigoParams struct {
	MinSize          int     `yaml:"min_size"`
	MaxSize          int     `yaml:"max_size"`
	ShiftFactor      float64 `yaml:"shift_factor"`
	ScaleFactor      float64 `yaml:"scale_factor"`
	IoUThreshold     float64 `yaml:"iou_threshold"`
	QualityThreshold float32 `yaml:"quality_threshold"`
}

// DefaultPigoParams mirrors the values commonly used with the facefinder cascade.
func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSize:          40,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// Pigo detects faces with the pure-Go pigo cascade.
type Pigo struct {
	classifier *pigo.Pigo
	params     PigoParams
}

// NewPigo loads the cascade file at path.
func NewPigo(path string, params PigoParams) (*Pigo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pigo cascade file: %w", err)
	}
	return NewPigoFromBytes(data, params)
}

// NewPigoFromBytes unpacks an in-memory cascade.
func NewPigoFromBytes(cascade []byte, params PigoParams) (*Pigo, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack pigo cascade: %w", err)
	}
	return &Pigo{classifier: classifier, params: params}, nil
}

func (p *Pigo) DetectRegions(_ context.Context, frame image.Image) ([]image.Rectangle, error) {
	bounds := frame.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()

	cParams := pigo.CascadeParams{
		MinSize:     p.params.MinSize,
		MaxSize:     p.params.MaxSize,
		ShiftFactor: p.params.ShiftFactor,
		ScaleFactor: p.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(frame),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(cParams, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.params.IoUThreshold)

	rects := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < p.params.QualityThreshold {
			continue
		}
		// Detections are centre + side length relative to the grayscale buffer.
		x := bounds.Min.X + det.Col - det.Scale/2
		y := bounds.Min.Y + det.Row - det.Scale/2
		rects = append(rects, image.Rect(x, y, x+det.Scale, y+det.Scale))
	}
	return Clip(rects, bounds), nil
}

func (p *Pigo) Close() error { return nil }
