// Package signature holds the keypoint-descriptor representation of a face crop
// and the ratio test used to decide whether two crops show the same face.
package signature

import (
	"errors"
	"image"
)

// ErrEmptyCrop is returned by extractors for images without pixels.
var ErrEmptyCrop = errors.New("empty crop")

// Keypoint is the location of one local feature inside the crop.
// Keypoints are kept alongside descriptors but are not used for matching.
type Keypoint struct {
	X     float64
	Y     float64
	Size  float64
	Angle float64
}

// Signature is the immutable set of local descriptors extracted from one face crop.
type Signature struct {
	descriptors [][]float64
	keypoints   []Keypoint
}

// New builds a signature from descriptor rows and their keypoints.
// The input slices are copied so later changes by the caller cannot leak in.
func New(descriptors [][]float64, keypoints []Keypoint) Signature {
	d := make([][]float64, len(descriptors))
	for i, row := range descriptors {
		d[i] = append([]float64(nil), row...)
	}
	return Signature{
		descriptors: d,
		keypoints:   append([]Keypoint(nil), keypoints...),
	}
}

// Len returns the number of descriptors.
func (s Signature) Len() int {
	return len(s.descriptors)
}

// Empty reports whether the crop produced no keypoints at all.
func (s Signature) Empty() bool {
	return len(s.descriptors) == 0
}

// Dim returns the descriptor dimension, or 0 for an empty signature.
func (s Signature) Dim() int {
	if len(s.descriptors) == 0 {
		return 0
	}
	return len(s.descriptors[0])
}

// Descriptor returns the i-th descriptor. The returned slice must not be modified.
func (s Signature) Descriptor(i int) []float64 {
	return s.descriptors[i]
}

// Keypoints returns a copy of the keypoints.
func (s Signature) Keypoints() []Keypoint {
	return append([]Keypoint(nil), s.keypoints...)
}

// Extractor turns a cropped face into a Signature.
// Implementations are not required to be safe for concurrent use.
type Extractor interface {
	Extract(crop image.Image) (Signature, error)
	Close() error
}
