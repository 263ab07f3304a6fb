package config

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facecache/internal/identity"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facecache.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "defaults without file or env",
			check: func(c *Config) bool {
				return c.Match.Ratio == 0.96 &&
					c.Match.Accept == 0.5 &&
					c.Match.Strategy == "first" &&
					c.Match.WorkingHeight == 160 &&
					c.Detector.Kind == DetectorPigo &&
					c.Detector.Pigo.MinSize == 40 &&
					c.Review.Listen == ":8080" &&
					c.IsDevelopment()
			},
		},
		{
			name: "yaml overrides defaults and keeps the rest",
			yaml: `
env: production
match:
  ratio: 0.8
  strategy: best
detector:
  kind: static
  static: "0,0,10,10"
`,
			check: func(c *Config) bool {
				return c.IsProduction() &&
					c.Match.Ratio == 0.8 &&
					c.Match.Accept == 0.5 &&
					c.Match.Strategy == "best" &&
					c.Detector.Kind == DetectorStatic &&
					c.Detector.Pigo.MinSize == 40
			},
		},
		{
			name: "env overrides yaml",
			yaml: `
match:
  ratio: 0.8
`,
			envVars: map[string]string{
				"FACECACHE_MATCH_RATIO":           "0.7",
				"FACECACHE_DETECTOR_KIND":         "rekognition",
				"FACECACHE_DETECTOR_AWS_REGION":   "eu-west-1",
				"FACECACHE_DATABASE_URL":          "postgres://localhost/facecache",
				"FACECACHE_DETECTOR_PIGO_MINSIZE": "80",
			},
			check: func(c *Config) bool {
				return c.Match.Ratio == 0.7 &&
					c.Detector.Kind == DetectorRekognition &&
					c.Detector.AWSRegion == "eu-west-1" &&
					c.Database.URL == "postgres://localhost/facecache" &&
					c.Detector.Pigo.MinSize == 80
			},
		},
		{
			name:    "rejects ratio above one",
			envVars: map[string]string{"FACECACHE_MATCH_RATIO": "1.5"},
			wantErr: true,
		},
		{
			name:    "rejects unknown strategy",
			yaml:    "match:\n  strategy: random\n",
			wantErr: true,
		},
		{
			name:    "rejects unknown detector",
			envVars: map[string]string{"FACECACHE_DETECTOR_KIND": "yolo"},
			wantErr: true,
		},
		{
			name:    "static detector needs boxes",
			yaml:    "detector:\n  kind: static\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "match: [",
			wantErr: true,
		},
		{
			name:    "malformed env value",
			envVars: map[string]string{"FACECACHE_MATCH_ACCEPT": "half"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed: %+v", cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestMatchParams(t *testing.T) {
	cfg := Default()
	cfg.Match.Ratio = 0.9
	cfg.Match.Accept = 0.3
	p := cfg.MatchParams()
	if p.Ratio != 0.9 || p.Accept != 0.3 {
		t.Errorf("MatchParams() = %+v", p)
	}
	if s, _ := identity.ParseStrategy(cfg.Match.Strategy); s != identity.FirstMatch {
		t.Errorf("Default strategy = %v, want first", s)
	}
}

func TestDatabaseURL(t *testing.T) {
	t.Run("explicit url wins", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "db")
		cfg := Default()
		cfg.Database.URL = "postgres://explicit/db"
		if got := cfg.DatabaseURL(); got != "postgres://explicit/db" {
			t.Errorf("DatabaseURL() = %q", got)
		}
	})

	t.Run("built from POSTGRES vars", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "db")
		t.Setenv("POSTGRES_USER", "user")
		t.Setenv("POSTGRES_PASSWORD", "pw")
		t.Setenv("POSTGRES_DB", "facecache")
		t.Setenv("POSTGRES_PORT", "")
		want := "postgres://user:pw@db:5432/facecache"
		if got := Default().DatabaseURL(); got != want {
			t.Errorf("DatabaseURL() = %q, want %q", got, want)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "")
		if got := Default().DatabaseURL(); got != "" {
			t.Errorf("DatabaseURL() = %q, want empty", got)
		}
	})
}

func TestParseBoxes(t *testing.T) {
	tests := []struct {
		in      string
		want    []image.Rectangle
		wantErr bool
	}{
		{in: "10,10,60,60", want: []image.Rectangle{image.Rect(10, 10, 60, 60)}},
		{in: "10,10,60,60; 100,100,150,150;", want: []image.Rectangle{image.Rect(10, 10, 60, 60), image.Rect(100, 100, 150, 150)}},
		{in: "60,60,10,10", want: []image.Rectangle{image.Rect(10, 10, 60, 60)}},
		{in: "", wantErr: true},
		{in: "1,2,3", wantErr: true},
		{in: "a,b,c,d", wantErr: true},
		{in: "5,5,5,9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBoxes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBoxes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseBoxes(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("box %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "production", "warn").Info("hidden")
	newLogger(&buf, "production", "warn").Warn("shown", "frame", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"frame":3`) {
		t.Errorf("Expected JSON output in production, got %s", out)
	}

	buf.Reset()
	newLogger(&buf, "development", "").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("Expected text output in development, got %s", buf.String())
	}
}
