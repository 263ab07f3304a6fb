package vision

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrFrameUnavailable is returned when the decoder cannot produce the requested frame.
var ErrFrameUnavailable = errors.New("failed to get the frame")

// Capture gives random access to the frames of a video file.
type Capture struct {
	mu    sync.Mutex
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	count int
	next  int
}

// OpenCapture opens path with OpenCV's video backend.
func OpenCapture(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}
	return &Capture{
		vc:    vc,
		mat:   gocv.NewMat(),
		count: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// Count returns the frame count reported by the container.
func (c *Capture) Count() int {
	return c.count
}

// FPS returns the frame rate reported by the container.
func (c *Capture) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Get(gocv.VideoCaptureFPS)
}

// Frame decodes the frame at index. Sequential reads avoid seeking.
func (c *Capture) Frame(index int) (image.Image, error) {
	if index < 0 || index >= c.count {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", index, c.count)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if index != c.next {
		c.vc.Set(gocv.VideoCapturePosFrames, float64(index))
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		c.next = -1
		return nil, fmt.Errorf("frame %d: %w", index, ErrFrameUnavailable)
	}
	c.next = index + 1

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	return img, nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mat.Close()
	return c.vc.Close()
}
