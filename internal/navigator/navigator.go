// Package navigator steps through a video frame by frame, running face
// detection on every frame it shows.
package navigator

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/andresmejia3/facecache/internal/detector"
	"github.com/andresmejia3/facecache/internal/types"
	"github.com/andresmejia3/facecache/internal/video"
)

const (
	MsgEndOfVideo   = "Reached the end of the video."
	MsgFirstFrame   = "Already at the first frame."
	MsgOutOfRange   = "out of range"
	MsgCacheCleared = "cleared face cache."
	MsgFrameFailed  = "Failed to get the frame."
)

// View is the state after a navigation step.
type View struct {
	Index     int                  `json:"index"`
	Total     int                  `json:"total"`
	Faces     []types.DetectedFace `json:"faces"`
	NewFaces  int                  `json:"new_faces"`
	CacheSize int                  `json:"cache_size"`
	Messages  []string             `json:"messages"`
}

// Controller owns the current position. All methods are safe for concurrent use;
// steps are applied one at a time.
type Controller struct {
	mu     sync.Mutex
	source video.FrameSource
	det    *detector.Detector
	log    *slog.Logger

	index int
	faces []types.DetectedFace
	frame *image.RGBA
}

func New(source video.FrameSource, det *detector.Detector, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{source: source, det: det, log: log}
}

// Show runs detection on the current frame again. Faces admitted the first
// time are reported as known from then on.
func (c *Controller) Show(ctx context.Context) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.show(ctx)
}

func (c *Controller) Next(ctx context.Context) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index >= c.source.Count()-1 {
		return c.current(MsgEndOfVideo), nil
	}
	c.index++
	return c.show(ctx)
}

func (c *Controller) Previous(ctx context.Context) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index <= 0 {
		return c.current(MsgFirstFrame), nil
	}
	c.index--
	return c.show(ctx)
}

// GoTo jumps to frame n. Indices past the end land on the last frame;
// negative indices are refused.
func (c *Controller) GoTo(ctx context.Context, n int) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total := c.source.Count(); n >= total {
		n = total - 1
	}
	if n < 0 {
		return c.current(MsgOutOfRange), nil
	}
	c.index = n
	return c.show(ctx)
}

// ClearCache forgets every face and shows the current frame again.
func (c *Controller) ClearCache(ctx context.Context) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.det.ClearCache()
	c.log.Info("face cache cleared")
	v, err := c.show(ctx)
	if err != nil {
		return v, err
	}
	v.Messages = append(v.Messages, MsgCacheCleared)
	return v, nil
}

// Current returns the view of the last step without running detection.
func (c *Controller) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

// Frame returns the annotated image of the last shown frame, or nil.
func (c *Controller) Frame() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return nil
	}
	return c.frame
}

func (c *Controller) show(ctx context.Context) (View, error) {
	img, err := c.source.Frame(c.index)
	if err != nil {
		c.log.Warn("frame unavailable", "frame", c.index, "error", err)
		c.faces, c.frame = nil, nil
		return c.current(MsgFrameFailed), nil
	}

	faces, err := c.det.DetectFaces(ctx, img)
	if err != nil {
		c.faces, c.frame = nil, nil
		return c.current(), fmt.Errorf("frame %d: %w", c.index, err)
	}
	c.faces = faces
	c.frame = Annotate(img, faces)

	v := c.current()
	if v.NewFaces > 0 {
		v.Messages = append(v.Messages, fmt.Sprintf("%d new faces detected in frame %d. face cache: %d", v.NewFaces, c.index, v.CacheSize))
		c.log.Info("new faces", "frame", c.index, "new", v.NewFaces, "cache_size", v.CacheSize)
	}
	return v, nil
}

func (c *Controller) current(messages ...string) View {
	return View{
		Index:     c.index,
		Total:     c.source.Count(),
		Faces:     append([]types.DetectedFace{}, c.faces...),
		NewFaces:  types.CountNew(c.faces),
		CacheSize: c.det.CacheSize(),
		Messages:  append([]string{}, messages...),
	}
}
