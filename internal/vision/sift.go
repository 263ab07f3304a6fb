// Package vision holds the OpenCV-backed pieces: SIFT signatures, Haar cascade
// face regions and random-access video capture.
package vision

import (
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/facecache/internal/signature"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// DefaultWorkingHeight is the crop height SIFT runs at.
const DefaultWorkingHeight = 160

// SIFTExtractor computes SIFT descriptors on a grayscale copy of the crop.
type SIFTExtractor struct {
	mu     sync.Mutex
	sift   gocv.SIFT
	height int
}

// NewSIFTExtractor creates an extractor. Crops are rescaled to height pixels
// (aspect kept) before detection; height <= 0 disables rescaling.
func NewSIFTExtractor(height int) *SIFTExtractor {
	return &SIFTExtractor{sift: gocv.NewSIFT(), height: height}
}

func (e *SIFTExtractor) Extract(crop image.Image) (signature.Signature, error) {
	b := crop.Bounds()
	if b.Empty() {
		return signature.Signature{}, signature.ErrEmptyCrop
	}

	src, err := gocv.ImageToMatRGB(normalize(crop, e.height))
	if err != nil {
		return signature.Signature{}, fmt.Errorf("failed to convert crop: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	defer mask.Close()

	e.mu.Lock()
	kps, desc := e.sift.DetectAndCompute(gray, mask)
	e.mu.Unlock()
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return signature.Signature{}, nil
	}

	rows := make([][]float64, desc.Rows())
	for i := range rows {
		row := make([]float64, desc.Cols())
		for j := range row {
			row[j] = float64(desc.GetFloatAt(i, j))
		}
		rows[i] = row
	}

	keypoints := make([]signature.Keypoint, len(kps))
	for i, kp := range kps {
		keypoints[i] = signature.Keypoint{X: kp.X, Y: kp.Y, Size: kp.Size, Angle: kp.Angle}
	}
	return signature.New(rows, keypoints), nil
}

func (e *SIFTExtractor) Close() error {
	return e.sift.Close()
}

// normalize returns a tightly packed RGBA copy of img anchored at the origin,
// rescaled to the given height with bilinear filtering when height > 0.
func normalize(img image.Image, height int) *image.RGBA {
	b := img.Bounds()
	if height <= 0 || b.Dy() == height {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	width := b.Dx() * height / b.Dy()
	if width < 1 {
		width = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
