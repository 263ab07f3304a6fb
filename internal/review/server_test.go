package review

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andresmejia3/facecache/internal/detector"
	"github.com/andresmejia3/facecache/internal/navigator"
	"github.com/andresmejia3/facecache/internal/region"
	"github.com/andresmejia3/facecache/internal/signature"
)

var faceRect = image.Rect(8, 8, 40, 40)

type memSource struct{ frames []image.Image }

func (m *memSource) Frame(i int) (image.Image, error) {
	if i < 0 || i >= len(m.frames) {
		return nil, errors.New("no frame")
	}
	return m.frames[i], nil
}

func (m *memSource) Count() int   { return len(m.frames) }
func (m *memSource) Close() error { return nil }

// greenExtractor keys the signature on the green channel of the crop.
type greenExtractor struct{}

func (greenExtractor) Extract(crop image.Image) (signature.Signature, error) {
	_, g, _, _ := crop.At(crop.Bounds().Min.X, crop.Bounds().Min.Y).RGBA()
	base := int(g>>8) / 50 * 2
	rows := [][]float64{make([]float64, 16), make([]float64, 16)}
	rows[0][base] = 10
	rows[1][base+1] = 10
	return signature.New(rows, nil), nil
}

func (greenExtractor) Close() error { return nil }

func frameOf(green uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, faceRect, &image.Uniform{C: color.RGBA{G: green, A: 255}}, image.Point{}, draw.Src)
	return img
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() *Server {
	det := detector.New(region.NewStatic(faceRect), greenExtractor{}, nil)
	nav := navigator.New(&memSource{frames: []image.Image{frameOf(50), frameOf(50), frameOf(150)}}, det, nil)
	return NewServer(nav, testLogger())
}

func do(t *testing.T, s *Server, method, path string) (*http.Response, navigator.View) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	var v navigator.View
	if resp.StatusCode == http.StatusOK && resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp, v
}

func TestNavigationRoutes(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name         string
		method, path string
		wantIndex    int
		wantNew      int
		wantCache    int
		wantMessage  string
	}{
		{"Show first frame", http.MethodPost, "/api/frame/show", 0, 1, 1, "1 new faces detected in frame 0. face cache: 1"},
		{"Current does not re-detect", http.MethodGet, "/api/frame", 0, 1, 1, ""},
		{"Previous at start", http.MethodPost, "/api/frame/prev", 0, 1, 1, navigator.MsgFirstFrame},
		{"Next sees known face", http.MethodPost, "/api/frame/next", 1, 0, 1, ""},
		{"Goto past end clamps", http.MethodPost, "/api/frame/goto/10", 2, 1, 2, "1 new faces detected in frame 2. face cache: 2"},
		{"Next at end", http.MethodPost, "/api/frame/next", 2, 1, 2, navigator.MsgEndOfVideo},
		{"Negative goto", http.MethodPost, "/api/frame/goto/-3", 2, 1, 2, navigator.MsgOutOfRange},
		{"Clear cache", http.MethodPost, "/api/cache/clear", 2, 1, 1, navigator.MsgCacheCleared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, v := do(t, s, tt.method, tt.path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if v.Index != tt.wantIndex || v.NewFaces != tt.wantNew || v.CacheSize != tt.wantCache {
				t.Errorf("view = %+v, want index %d new %d cache %d", v, tt.wantIndex, tt.wantNew, tt.wantCache)
			}
			if tt.wantMessage == "" {
				return
			}
			if len(v.Messages) == 0 || v.Messages[len(v.Messages)-1] != tt.wantMessage {
				t.Errorf("messages = %q, want last %q", v.Messages, tt.wantMessage)
			}
		})
	}
}

func TestGotoRejectsGarbage(t *testing.T) {
	resp, _ := do(t, newTestServer(), http.MethodPost, "/api/frame/goto/abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFrameImage(t *testing.T) {
	s := newTestServer()

	resp, _ := do(t, s, http.MethodGet, "/api/frame.jpg")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status before first show = %d, want 404", resp.StatusCode)
	}

	do(t, s, http.MethodPost, "/api/frame/show")
	resp, _ = do(t, s, http.MethodGet, "/api/frame.jpg")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatalf("response is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("image size = %v, want 64x48", img.Bounds())
	}
}

func TestIndexAndHealth(t *testing.T) {
	s := newTestServer()
	for _, path := range []string{"/", "/health"} {
		resp, _ := do(t, s, http.MethodGet, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
