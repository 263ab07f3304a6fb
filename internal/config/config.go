package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/andresmejia3/facecache/internal/identity"
	"github.com/andresmejia3/facecache/internal/region"
	"github.com/andresmejia3/facecache/internal/signature"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable, e.g. FACECACHE_DETECTOR_KIND.
const EnvPrefix = "FACECACHE"

// Detector kinds.
const (
	DetectorPigo        = "pigo"
	DetectorCascade     = "cascade"
	DetectorRekognition = "rekognition"
	DetectorStatic      = "static"
)

type Config struct {
	Environment string `yaml:"env" envconfig:"ENV"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Match    MatchConfig    `yaml:"match" envconfig:"MATCH"`
	Detector DetectorConfig `yaml:"detector" envconfig:"DETECTOR"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Review   ReviewConfig   `yaml:"review" envconfig:"REVIEW"`
}

type MatchConfig struct {
	Ratio    float64 `yaml:"ratio" envconfig:"RATIO"`
	Accept   float64 `yaml:"accept" envconfig:"ACCEPT"`
	Strategy string  `yaml:"strategy" envconfig:"STRATEGY"`
	// WorkingHeight is the crop height SIFT runs at; 0 keeps crops as they are.
	WorkingHeight int `yaml:"working_height" envconfig:"WORKING_HEIGHT"`
}

type DetectorConfig struct {
	Kind string `yaml:"kind" envconfig:"KIND"`

	PigoCascade string            `yaml:"pigo_cascade" envconfig:"PIGO_CASCADE"`
	Pigo        region.PigoParams `yaml:"pigo" envconfig:"PIGO"`

	CascadePath         string  `yaml:"cascade_path" envconfig:"CASCADE_PATH"`
	CascadeScaleFactor  float64 `yaml:"cascade_scale_factor" envconfig:"CASCADE_SCALE_FACTOR"`
	CascadeMinNeighbors int     `yaml:"cascade_min_neighbors" envconfig:"CASCADE_MIN_NEIGHBORS"`
	CascadeMinSize      int     `yaml:"cascade_min_size" envconfig:"CASCADE_MIN_SIZE"`

	AWSRegion     string  `yaml:"aws_region" envconfig:"AWS_REGION"`
	MinConfidence float32 `yaml:"min_confidence" envconfig:"MIN_CONFIDENCE"`

	// Static lists fixed boxes as "x1,y1,x2,y2;x1,y1,x2,y2".
	Static string `yaml:"static" envconfig:"STATIC"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" envconfig:"URL"`
}

type ReviewConfig struct {
	Listen string `yaml:"listen" envconfig:"LISTEN"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := signature.DefaultParams()
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Match: MatchConfig{
			Ratio:         p.Ratio,
			Accept:        p.Accept,
			Strategy:      identity.FirstMatch.String(),
			WorkingHeight: 160,
		},
		Detector: DetectorConfig{
			Kind:                DetectorPigo,
			PigoCascade:         "cascade/facefinder",
			Pigo:                region.DefaultPigoParams(),
			CascadePath:         "haarcascade_frontalface_default.xml",
			CascadeScaleFactor:  1.1,
			CascadeMinNeighbors: 3,
			CascadeMinSize:      30,
			AWSRegion:           "us-east-1",
			MinConfidence:       90,
		},
		Review: ReviewConfig{Listen: ":8080"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.MatchParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := identity.ParseStrategy(c.Match.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Match.WorkingHeight < 0 {
		errs = append(errs, fmt.Errorf("working height must be >= 0, got %d", c.Match.WorkingHeight))
	}
	if c.Environment != "development" && c.Environment != "production" {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	d := c.Detector
	switch d.Kind {
	case DetectorPigo:
		if d.PigoCascade == "" {
			errs = append(errs, errors.New("pigo detector needs a cascade file"))
		}
	case DetectorCascade:
		if d.CascadePath == "" {
			errs = append(errs, errors.New("cascade detector needs a cascade file"))
		}
		if d.CascadeScaleFactor <= 1 {
			errs = append(errs, fmt.Errorf("cascade scale factor must be > 1, got %f", d.CascadeScaleFactor))
		}
	case DetectorRekognition:
		if d.AWSRegion == "" {
			errs = append(errs, errors.New("rekognition detector needs an AWS region"))
		}
	case DetectorStatic:
		if _, err := ParseBoxes(d.Static); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown detector %q (want pigo, cascade, rekognition or static)", d.Kind))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// MatchParams returns the ratio test thresholds.
func (c *Config) MatchParams() signature.Params {
	return signature.Params{Ratio: c.Match.Ratio, Accept: c.Match.Accept}
}

// DatabaseURL returns the configured connection string, falling back to the
// POSTGRES_* variables. It returns "" when neither is set.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// ParseBoxes parses "x1,y1,x2,y2;..." into rectangles.
func ParseBoxes(s string) ([]image.Rectangle, error) {
	var rects []image.Rectangle
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("box %q: want x1,y1,x2,y2", part)
		}
		var v [4]int
		for i, f := range fields {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("box %q: %w", part, err)
			}
			v[i] = n
		}
		r := image.Rect(v[0], v[1], v[2], v[3])
		if r.Empty() {
			return nil, fmt.Errorf("box %q is empty", part)
		}
		rects = append(rects, r)
	}
	if len(rects) == 0 {
		return nil, errors.New("static detector needs at least one box")
	}
	return rects, nil
}
