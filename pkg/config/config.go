// Package config provides configuration loading and management for glitchsort.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"glitchsort/pkg/codec"
	"glitchsort/pkg/metric"
	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/preset"
	"glitchsort/pkg/raster"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// PresetSpec is a user-defined preset as written in the YAML file
type PresetSpec struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description,omitempty"`
	Metric         metric.Metric    `yaml:"metric"`
	Direction      raster.Direction `yaml:"direction"`
	Order          pixelsort.Order  `yaml:"order"`
	ThresholdLower int              `yaml:"thresholdLower"`
	ThresholdUpper int              `yaml:"thresholdUpper"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Sort parameters for a single pass
	Sort struct {
		// Metric is the per-pixel sort key (brightness, hue, saturation,
		// lightness, red, green, blue, sum)
		Metric metric.Metric `yaml:"metric"`

		// Direction selects rows or columns
		Direction raster.Direction `yaml:"direction"`

		// Order is ascending or descending
		Order pixelsort.Order `yaml:"order"`

		// ThresholdLower and ThresholdUpper bound the mask window [lower, upper)
		ThresholdLower int `yaml:"thresholdLower"`
		ThresholdUpper int `yaml:"thresholdUpper"`

		// Preset, when set, overrides the four fields above
		Preset string `yaml:"preset,omitempty"`
	} `yaml:"sort"`

	// Processing parameters
	Processing struct {
		// NumWorkers is how many goroutines share the lines of one pass
		NumWorkers int `yaml:"numWorkers"`

		// Passes is how many times the pass is repeated
		Passes int `yaml:"passes"`

		// MaxDimension downscales larger images before sorting (0 disables)
		MaxDimension int `yaml:"maxDimension"`

		// AutoThreshold derives the window from metric quantiles of the image
		AutoThreshold bool `yaml:"autoThreshold"`

		// AutoQuantiles are the lower and upper quantiles used by AutoThreshold
		AutoQuantiles []float64 `yaml:"autoQuantiles"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Format forces the output encoding; empty means use the file extension
		Format string `yaml:"format,omitempty"`

		// JPEGQuality is used when writing JPEG
		JPEGQuality int `yaml:"jpegQuality"`

		// SaveIntermediaryResults writes the original, mask and sorted stages
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where the stages are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Presets are added to the built-in presets
	Presets []PresetSpec `yaml:"presets,omitempty"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default sort parameters
	cfg.Sort.Metric = metric.Brightness
	cfg.Sort.Direction = raster.Rows
	cfg.Sort.Order = pixelsort.Ascending
	cfg.Sort.ThresholdLower = 64
	cfg.Sort.ThresholdUpper = 192

	// Set default processing parameters
	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Passes = 1
	cfg.Processing.MaxDimension = 0
	cfg.Processing.AutoThreshold = false
	cfg.Processing.AutoQuantiles = []float64{0.25, 0.75}

	// Set default output parameters
	cfg.Output.JPEGQuality = 95
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig reads a YAML file over the defaults and validates the result.
// Keys missing from the file keep their default values; a missing file
// yields the defaults unchanged. Metric, direction and order names are
// parsed while decoding, so an unknown name fails here.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating parent directories as needed.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", configPath, err)
	}
	return nil
}

// CreateDefaultConfigFile writes the defaults to configPath as a starting
// point for editing.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

func checkThreshold(name string, v int) error {
	if v < 0 || v > 256 {
		return fmt.Errorf("%w: %s %d outside 0..256", ErrInvalid, name, v)
	}
	return nil
}

func sortFields(m metric.Metric, d raster.Direction, o pixelsort.Order, lower, upper int) (pixelsort.Config, error) {
	out := pixelsort.Config{
		Metric:     m,
		Direction:  d,
		Order:      o,
		Thresholds: pixelsort.ThresholdRange{Lower: lower, Upper: upper},
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := checkThreshold("thresholdLower", lower); err != nil {
		return out, err
	}
	if err := checkThreshold("thresholdUpper", upper); err != nil {
		return out, err
	}
	return out, nil
}

// Validate checks every field. Lower and upper thresholds are not checked
// against each other; an inverted window sorts nothing.
func (c *Config) Validate() error {
	if _, err := sortFields(c.Sort.Metric, c.Sort.Direction, c.Sort.Order,
		c.Sort.ThresholdLower, c.Sort.ThresholdUpper); err != nil {
		return fmt.Errorf("sort: %w", err)
	}
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("%w: numWorkers must be at least 1", ErrInvalid)
	}
	if c.Processing.Passes < 1 {
		return fmt.Errorf("%w: passes must be at least 1", ErrInvalid)
	}
	if c.Processing.MaxDimension < 0 {
		return fmt.Errorf("%w: maxDimension must not be negative", ErrInvalid)
	}
	if q := c.Processing.AutoQuantiles; len(q) != 2 || q[0] < 0 || q[1] > 1 || q[0] > q[1] {
		return fmt.Errorf("%w: autoQuantiles must be two values 0 <= lo <= hi <= 1", ErrInvalid)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpegQuality must be in 1..100", ErrInvalid)
	}
	if f := c.Output.Format; f != "" {
		if _, err := codec.ParseFormat(f); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry returns the built-in presets plus those declared in the file.
func (c *Config) Registry() (*preset.Registry, error) {
	reg := preset.NewRegistry()
	for _, spec := range c.Presets {
		sc, err := sortFields(spec.Metric, spec.Direction, spec.Order, spec.ThresholdLower, spec.ThresholdUpper)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", spec.Name, err)
		}
		p := preset.Preset{Name: spec.Name, Description: spec.Description, Config: sc}
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return reg, nil
}

// SortConfig resolves the sort section into an engine configuration. A named
// preset takes precedence over the individual fields.
func (c *Config) SortConfig() (pixelsort.Config, error) {
	if c.Sort.Preset != "" {
		reg, err := c.Registry()
		if err != nil {
			return pixelsort.Config{}, err
		}
		p, err := reg.Lookup(c.Sort.Preset)
		if err != nil {
			return pixelsort.Config{}, err
		}
		return p.Config, nil
	}
	return sortFields(c.Sort.Metric, c.Sort.Direction, c.Sort.Order,
		c.Sort.ThresholdLower, c.Sort.ThresholdUpper)
}
