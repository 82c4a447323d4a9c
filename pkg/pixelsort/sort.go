package pixelsort

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/raster"
)

// ProgressFunc is called between lines with the number of completed lines.
// Calls are serialised even when several workers are running.
type ProgressFunc func(completed, total int)

// Stats summarises one sort pass.
type Stats struct {
	// Lines is the number of lines fully processed.
	Lines int
	// Segments is the number of non-empty segments sorted.
	Segments int
	// Pixels is the number of pixels that fell inside a segment.
	Pixels int
}

type options struct {
	workers  int
	progress ProgressFunc
}

// Option configures Sort.
type Option func(*options)

// WithWorkers spreads lines over n goroutines. Values below 1 mean 1.
// The result does not depend on n.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// lineSorter owns the scratch buffers for sorting one line at a time.
// Each worker has its own.
type lineSorter struct {
	cfg    Config
	pix    []raster.Pixel
	keys   []float64
	keyed  []keyedPixel
	sorted []raster.Pixel
}

// sortLine runs extraction, sorting and write-back for one line. Segments are
// handled in increasing index order; the line's pixels are gathered before
// any write so every key reflects the line as it was before the pass.
func (s *lineSorter) sortLine(r *raster.Raster, line raster.Line) (segments, pixels int, err error) {
	s.pix = r.Gather(line, s.pix)
	s.keys = metric.Keys(s.pix, s.cfg.Metric, s.keys)

	for _, seg := range ExtractSegments(s.keys, s.cfg.Thresholds) {
		if cap(s.sorted) < seg.Len() {
			s.sorted = make([]raster.Pixel, seg.Len())
		}
		out := s.sorted[:seg.Len()]
		s.keyed = sortKeyed(s.pix[seg.Start:seg.End], s.keys[seg.Start:seg.End], s.cfg.Order, s.keyed, out)
		if err := Write(r, line, seg, out); err != nil {
			return segments, pixels, err
		}
		segments++
		pixels += seg.Len()
	}
	return segments, pixels, nil
}

// SortLine sorts every segment of a single line in place.
func SortLine(r *raster.Raster, line raster.Line, cfg Config) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	s := &lineSorter{cfg: cfg}
	segs, px, err := s.sortLine(r, line)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Lines: 1, Segments: segs, Pixels: px}, nil
}

// Sort runs one pass over every line of r in cfg.Direction, mutating r in
// place. Cancellation is checked between lines; a cancelled pass returns the
// context error and leaves the lines processed so far sorted.
func Sort(ctx context.Context, r *raster.Raster, cfg Config, opts ...Option) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	total := r.LineCount(cfg.Direction)
	workers := max(1, min(o.workers, total))

	log := Logger()
	if cfg.Thresholds.Empty() {
		log.Warn("threshold window is empty, pass leaves the image unchanged",
			"lower", cfg.Thresholds.Lower, "upper", cfg.Thresholds.Upper)
	}
	log.Debug("sort pass starting", "config", cfg.String(), "raster", r.String(),
		"lines", total, "workers", workers)

	var (
		lines, segments, pixels atomic.Int64
		progressMu              sync.Mutex
	)
	// Counting and reporting share the lock so callbacks see increasing values.
	report := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		done := int(lines.Add(1))
		if o.progress != nil {
			o.progress(done, total)
		}
	}

	// Lines are split into contiguous blocks, one per worker. A single line
	// is never shared between workers because its segment boundaries are
	// found sequentially.
	run := func(ctx context.Context, first, last int) error {
		s := &lineSorter{cfg: cfg}
		for n := first; n < last; n++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			line, err := r.Line(cfg.Direction, n)
			if err != nil {
				return err
			}
			segs, px, err := s.sortLine(r, line)
			if err != nil {
				return err
			}
			segments.Add(int64(segs))
			pixels.Add(int64(px))
			report()
		}
		return nil
	}

	var err error
	if workers == 1 {
		err = run(ctx, 0, total)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		perWorker := (total + workers - 1) / workers
		for w := 0; w < workers; w++ {
			first := w * perWorker
			last := min(first+perWorker, total)
			if first >= last {
				break
			}
			g.Go(func() error { return run(gctx, first, last) })
		}
		err = g.Wait()
	}

	stats := Stats{
		Lines:    int(lines.Load()),
		Segments: int(segments.Load()),
		Pixels:   int(pixels.Load()),
	}
	if err != nil {
		log.Debug("sort pass stopped", "error", err, "lines", stats.Lines)
		return stats, err
	}
	log.Debug("sort pass finished", "segments", stats.Segments, "pixels", stats.Pixels)
	return stats, nil
}
