// Package session owns an image being glitched: the immutable original, the
// working copy that sort passes mutate, and the current sort configuration.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/preset"
	"glitchsort/pkg/raster"
)

var (
	// ErrNotLoaded is returned by Sort, Reset and Export when no image is loaded.
	ErrNotLoaded = errors.New("no image loaded")
	// ErrBusy is returned for any call made while a sort pass is running.
	ErrBusy = errors.New("sort in progress")
)

// State is the lifecycle state of a Session.
type State int

const (
	// Idle: no raster loaded.
	Idle State = iota
	// Loaded: working equals original.
	Loaded
	// Processing: a sort pass is running.
	Processing
	// Sorted: at least one pass has run since the last load or reset.
	Sorted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Processing:
		return "processing"
	case Sorted:
		return "sorted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session drives sort passes over a loaded raster.
//
// Original is never mutated and never aliased by Working. Sort passes operate
// on the current Working buffer, so repeated passes compose; Reset restores
// Working from Original.
type Session struct {
	mu       sync.Mutex
	state    State
	original *raster.Raster
	working  *raster.Raster
	config   pixelsort.Config
	presets  *preset.Registry
	workers  int
	progress pixelsort.ProgressFunc
	stats    pixelsort.Stats
}

// Option configures a Session.
type Option func(*Session)

// WithWorkers sets how many goroutines a sort pass may use.
func WithWorkers(n int) Option {
	return func(s *Session) { s.workers = n }
}

// WithProgress installs a callback invoked between lines of every pass.
func WithProgress(fn pixelsort.ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

// WithConfig sets the initial sort configuration.
func WithConfig(cfg pixelsort.Config) Option {
	return func(s *Session) { s.config = cfg }
}

// WithPresets replaces the preset registry used by ApplyPreset.
func WithPresets(r *preset.Registry) Option {
	return func(s *Session) { s.presets = r }
}

// New creates an idle session.
func New(opts ...Option) *Session {
	s := &Session{
		state:   Idle,
		config:  pixelsort.DefaultConfig(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presets == nil {
		s.presets = preset.NewRegistry()
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsLoaded reports whether a raster is available for sorting.
func (s *Session) IsLoaded() bool {
	st := s.State()
	return st == Loaded || st == Sorted || st == Processing
}

// Load stores a private copy of r as the original and a second copy as the
// working buffer. Any previously loaded image is dropped.
func (s *Session) Load(r *raster.Raster) error {
	if r == nil {
		return fmt.Errorf("load: nil raster")
	}
	if len(r.Pix) != r.Width*r.Height {
		return fmt.Errorf("load: buffer holds %d pixels, want %d", len(r.Pix), r.Width*r.Height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Processing {
		return ErrBusy
	}
	s.original = r.Clone()
	s.working = r.Clone()
	s.stats = pixelsort.Stats{}
	s.state = Loaded
	return nil
}

// Config returns the current sort configuration.
func (s *Session) Config() pixelsort.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetConfig replaces the current configuration without sorting.
func (s *Session) SetConfig(cfg pixelsort.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Processing {
		return ErrBusy
	}
	s.config = cfg
	return nil
}

// ApplyPreset sets the configuration from a named preset. It does not sort.
func (s *Session) ApplyPreset(name string) error {
	p, err := s.presets.Lookup(name)
	if err != nil {
		return err
	}
	return s.SetConfig(p.Config)
}

// Sort runs one pass with the current configuration.
func (s *Session) Sort(ctx context.Context) error {
	return s.SortWith(ctx, s.Config())
}

// SortWith stores cfg as the current configuration and runs one pass with it.
// The session yields once before the pass starts and then runs it to
// completion or cancellation. A cancelled pass leaves the working buffer
// partially sorted and the session in the Sorted state.
func (s *Session) SortWith(ctx context.Context, cfg pixelsort.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return ErrNotLoaded
	case Processing:
		s.mu.Unlock()
		return ErrBusy
	}
	s.config = cfg
	s.state = Processing
	working := s.working
	workers, progress := s.workers, s.progress
	s.mu.Unlock()

	runtime.Gosched()

	opts := []pixelsort.Option{pixelsort.WithWorkers(workers)}
	if progress != nil {
		opts = append(opts, pixelsort.WithProgress(progress))
	}
	stats, err := pixelsort.Sort(ctx, working, cfg, opts...)

	s.mu.Lock()
	s.state = Sorted
	s.stats = stats
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("sort: %w", err)
	}
	pixelsort.Logger().Debug("session sort complete", "config", cfg.String(), "segments", stats.Segments)
	return nil
}

// LastStats returns the statistics of the most recent pass.
func (s *Session) LastStats() pixelsort.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Reset overwrites the working buffer with a fresh copy of the original.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		return ErrNotLoaded
	case Processing:
		return ErrBusy
	}
	if err := s.working.CopyFrom(s.original); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.stats = pixelsort.Stats{}
	s.state = Loaded
	return nil
}

// Clear drops both buffers and returns to Idle.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Processing {
		return ErrBusy
	}
	s.original = nil
	s.working = nil
	s.stats = pixelsort.Stats{}
	s.state = Idle
	return nil
}

// Export returns a copy of the working buffer for encoding.
func (s *Session) Export() (*raster.Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		return nil, ErrNotLoaded
	case Processing:
		return nil, ErrBusy
	}
	return s.working.Clone(), nil
}

// Original returns a copy of the original raster.
func (s *Session) Original() (*raster.Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		return nil, ErrNotLoaded
	case Processing:
		return nil, ErrBusy
	}
	return s.original.Clone(), nil
}
