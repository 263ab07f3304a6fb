package region

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
)

const (
	errCodeAccessDenied     = "AccessDeniedException"
	errCodeInvalidParameter = "InvalidParameterException"
	errCodeImageTooLarge    = "ImageTooLargeException"
)

var (
	// ErrInvalidCredentials is returned when AWS refuses the request.
	ErrInvalidCredentials = errors.New("invalid AWS credentials")
	// ErrImageTooLarge is returned when the encoded frame exceeds the API limit.
	ErrImageTooLarge = errors.New("frame too large for rekognition")
)

// RekognitionAPI is the subset of the Rekognition client used here.
type RekognitionAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Rekognition locates faces with the AWS Rekognition DetectFaces API.
type Rekognition struct {
	api           RekognitionAPI
	minConfidence float32
	jpegQuality   int
}

// NewRekognition builds a client from the default AWS credential chain.
func NewRekognition(ctx context.Context, region string, minConfidence float32) (*Rekognition, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewRekognitionWithAPI(rekognition.NewFromConfig(awsCfg), minConfidence), nil
}

// NewRekognitionWithAPI wraps an existing API implementation.
func NewRekognitionWithAPI(api RekognitionAPI, minConfidence float32) *Rekognition {
	return &Rekognition{api: api, minConfidence: minConfidence, jpegQuality: 90}
}

func (r *Rekognition) DetectRegions(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: r.jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	out, err := r.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: buf.Bytes()},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case errCodeAccessDenied:
				return nil, fmt.Errorf("detect faces: %w", ErrInvalidCredentials)
			case errCodeImageTooLarge:
				return nil, fmt.Errorf("detect faces (%d bytes): %w", buf.Len(), ErrImageTooLarge)
			case errCodeInvalidParameter:
				return nil, fmt.Errorf("detect faces: invalid parameters: %w", err)
			}
		}
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	bounds := frame.Bounds()
	w, h := float32(bounds.Dx()), float32(bounds.Dy())
	rects := make([]image.Rectangle, 0, len(out.FaceDetails))
	for _, d := range out.FaceDetails {
		if d.BoundingBox == nil {
			continue
		}
		if r.minConfidence > 0 && aws.ToFloat32(d.Confidence) < r.minConfidence {
			continue
		}
		// Boxes are ratios of the frame size and may extend past the edges.
		bb := d.BoundingBox
		x1 := bounds.Min.X + int(aws.ToFloat32(bb.Left)*w)
		y1 := bounds.Min.Y + int(aws.ToFloat32(bb.Top)*h)
		x2 := x1 + int(aws.ToFloat32(bb.Width)*w)
		y2 := y1 + int(aws.ToFloat32(bb.Height)*h)
		rects = append(rects, image.Rect(x1, y1, x2, y2))
	}
	return Clip(rects, bounds), nil
}

func (r *Rekognition) Close() error { return nil }
