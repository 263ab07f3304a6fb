package vision

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/facecache/internal/region"
	"gocv.io/x/gocv"
)

// CascadeParams tunes DetectMultiScale.
type CascadeParams struct {
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
}

func DefaultCascadeParams() CascadeParams {
	return CascadeParams{ScaleFactor: 1.1, MinNeighbors: 3, MinSize: 30}
}

// Cascade finds faces with an OpenCV Haar cascade.
type Cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	params     CascadeParams
}

// NewCascade loads the classifier from an XML file such as haarcascade_frontalface_default.xml.
func NewCascade(path string, params CascadeParams) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade file: %s", path)
	}
	return &Cascade{classifier: classifier, params: params}, nil
}

func (c *Cascade) DetectRegions(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := gocv.ImageToMatRGB(normalize(frame, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	minSize := image.Pt(c.params.MinSize, c.params.MinSize)

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(gray, c.params.ScaleFactor, c.params.MinNeighbors, 0, minSize, image.Point{})
	c.mu.Unlock()

	// Mat coordinates start at zero; shift back into the frame's space.
	origin := frame.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(origin)
	}
	return region.Clip(rects, frame.Bounds()), nil
}

func (c *Cascade) Close() error {
	return c.classifier.Close()
}
