// Package preset provides named, fixed sort configurations.
package preset

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/raster"
)

var (
	// ErrUnknownPreset is returned when a name is not registered.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrDuplicatePreset is returned when registering a name twice.
	ErrDuplicatePreset = errors.New("preset already registered")
)

// Preset is a named bundle of metric, direction, order and thresholds.
type Preset struct {
	Name        string
	Description string
	Config      pixelsort.Config
}

func (p Preset) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Config)
}

func bundle(m metric.Metric, d raster.Direction, o pixelsort.Order, lower, upper int) pixelsort.Config {
	return pixelsort.Config{
		Metric:     m,
		Direction:  d,
		Order:      o,
		Thresholds: pixelsort.ThresholdRange{Lower: lower, Upper: upper},
	}
}

var builtins = []Preset{
	{"classic", "Mid-tone rows drift from dark to light", bundle(metric.Brightness, raster.Rows, pixelsort.Ascending, 64, 192)},
	{"waterfall", "Bright columns pour downward", bundle(metric.Brightness, raster.Columns, pixelsort.Descending, 32, 224)},
	{"hue-bands", "Every row becomes a hue gradient", bundle(metric.Hue, raster.Rows, pixelsort.Ascending, 0, 256)},
	{"dark-melt", "Shadows sag along columns", bundle(metric.Lightness, raster.Columns, pixelsort.Ascending, 0, 96)},
	{"highlights", "Only highlights are streaked", bundle(metric.Brightness, raster.Rows, pixelsort.Descending, 160, 256)},
	{"red-shift", "Rows ordered by their red channel", bundle(metric.Red, raster.Rows, pixelsort.Ascending, 40, 220)},
	{"saturate", "Vivid colours collect at the top", bundle(metric.Saturation, raster.Columns, pixelsort.Descending, 60, 256)},
	{"channel-sum", "Full rows sorted by channel mean", bundle(metric.Sum, raster.Rows, pixelsort.Ascending, 0, 256)},
}

// Builtins returns a copy of the built-in presets.
func Builtins() []Preset {
	return slices.Clone(builtins)
}

// Registry is a set of presets looked up by case-insensitive name.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

// NewRegistry returns a registry seeded with the built-in presets.
func NewRegistry() *Registry {
	r := &Registry{presets: make(map[string]Preset, len(builtins))}
	for _, p := range builtins {
		r.presets[key(p.Name)] = p
	}
	return r
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a preset. Names must be unique and the config valid.
func (r *Registry) Register(p Preset) error {
	k := key(p.Name)
	if k == "" {
		return fmt.Errorf("preset name must not be empty")
	}
	if err := p.Config.Validate(); err != nil {
		return fmt.Errorf("preset %q: %w", p.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.presets[k]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePreset, p.Name)
	}
	r.presets[k] = p
	return nil
}

// Lookup finds a preset by name.
func (r *Registry) Lookup(name string) (Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[key(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.presets))
	for _, p := range r.presets {
		names = append(names, p.Name)
	}
	slices.Sort(names)
	return names
}

// All returns every preset ordered by name.
func (r *Registry) All() []Preset {
	names := r.Names()
	out := make([]Preset, 0, len(names))
	for _, n := range names {
		p, err := r.Lookup(n)
		if err == nil {
			out = append(out, p)
		}
	}
	return out
}

var defaultRegistry = NewRegistry()

// Lookup finds a built-in preset by name.
func Lookup(name string) (Preset, error) {
	return defaultRegistry.Lookup(name)
}

// Names lists the built-in presets.
func Names() []string {
	return defaultRegistry.Names()
}
