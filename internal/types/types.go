package types

import "image"

// FrameTask represents a single frame sent to a worker for processing
type FrameTask struct {
	Index int
	Data  []byte
}

// Box is an axis-aligned face rectangle given by its top-left and bottom-right corners.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// BoxFromRect converts an image.Rectangle (Min/Max corners) into a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// DetectedFace is the per-region verdict handed to the presentation layer.
type DetectedFace struct {
	IsNew bool `json:"is_new"`
	Box   Box  `json:"box"`
}

// CountNew returns how many faces in the slice were seen for the first time.
func CountNew(faces []DetectedFace) int {
	n := 0
	for _, f := range faces {
		if f.IsNew {
			n++
		}
	}
	return n
}
