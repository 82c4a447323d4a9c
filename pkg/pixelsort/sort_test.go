package pixelsort

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/raster"
)

// createRandomRaster fills a raster with seeded noise, alpha included.
func createRandomRaster(width, height int, seed int64) *raster.Raster {
	rng := rand.New(rand.NewSource(seed))
	r := raster.New(width, height)
	for i := range r.Pix {
		r.Pix[i] = raster.Pixel{
			R: uint8(rng.Intn(256)),
			G: uint8(rng.Intn(256)),
			B: uint8(rng.Intn(256)),
			A: uint8(rng.Intn(256)),
		}
	}
	return r
}

func allConfigs(t ThresholdRange) []Config {
	var out []Config
	for _, m := range metric.All() {
		for _, d := range []raster.Direction{raster.Rows, raster.Columns} {
			for _, o := range []Order{Ascending, Descending} {
				out = append(out, Config{Metric: m, Direction: d, Order: o, Thresholds: t})
			}
		}
	}
	return out
}

func pixelCounts(pix []raster.Pixel) map[raster.Pixel]int {
	counts := make(map[raster.Pixel]int, len(pix))
	for _, p := range pix {
		counts[p]++
	}
	return counts
}

func TestFullRangeMonotonic(t *testing.T) {
	src := createRandomRaster(13, 9, 1)
	for _, cfg := range allConfigs(FullRange) {
		r := src.Clone()
		stats, err := Sort(context.Background(), r, cfg)
		if err != nil {
			t.Fatalf("%s: Sort failed: %v", cfg, err)
		}
		if stats.Lines != r.LineCount(cfg.Direction) {
			t.Errorf("%s: expected %d lines, got %d", cfg, r.LineCount(cfg.Direction), stats.Lines)
		}
		if stats.Segments != stats.Lines {
			t.Errorf("%s: expected one segment per line, got %d for %d lines", cfg, stats.Segments, stats.Lines)
		}
		if stats.Pixels != len(r.Pix) {
			t.Errorf("%s: expected %d pixels in segments, got %d", cfg, len(r.Pix), stats.Pixels)
		}

		for line := range r.Lines(cfg.Direction) {
			prev := 0.0
			for i, idx := range line.Positions() {
				v := cfg.Metric.Evaluate(r.Pix[idx])
				if i > 0 {
					if cfg.Order == Ascending && v < prev {
						t.Fatalf("%s: not non-decreasing at position %d (%f < %f)", cfg, i, v, prev)
					}
					if cfg.Order == Descending && v > prev {
						t.Fatalf("%s: not non-increasing at position %d (%f > %f)", cfg, i, v, prev)
					}
				}
				prev = v
			}
		}
	}
}

func TestEmptyMaskIdentity(t *testing.T) {
	src := createRandomRaster(11, 7, 2)
	for _, window := range []ThresholdRange{{0, 0}, {128, 128}, {255, 255}, {256, 256}, {200, 50}} {
		for _, cfg := range allConfigs(window) {
			r := src.Clone()
			stats, err := Sort(context.Background(), r, cfg)
			if err != nil {
				t.Fatalf("%s: Sort failed: %v", cfg, err)
			}
			if stats.Segments != 0 {
				t.Errorf("%s: expected no segments, got %d", cfg, stats.Segments)
			}
			if !r.Equal(src) {
				t.Errorf("%s: raster changed", cfg)
			}
		}
	}
}

func TestPermutationPerLine(t *testing.T) {
	src := createRandomRaster(17, 12, 3)
	for _, cfg := range allConfigs(ThresholdRange{60, 190}) {
		r := src.Clone()
		if _, err := Sort(context.Background(), r, cfg); err != nil {
			t.Fatalf("%s: Sort failed: %v", cfg, err)
		}
		for line := range r.Lines(cfg.Direction) {
			before := pixelCounts(src.Gather(line, nil))
			after := pixelCounts(r.Gather(line, nil))
			if diff := cmp.Diff(before, after); diff != "" {
				t.Fatalf("%s: line multiset changed (-before +after):\n%s", cfg, diff)
			}
		}
	}
}

func TestPixelsOutsideSegmentsUntouched(t *testing.T) {
	src := createRandomRaster(20, 5, 4)
	cfg := Config{Metric: metric.Brightness, Direction: raster.Rows, Order: Descending, Thresholds: ThresholdRange{90, 170}}
	r := src.Clone()
	if _, err := Sort(context.Background(), r, cfg); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	for line := range src.Lines(cfg.Direction) {
		inside := make(map[int]bool)
		for _, s := range ExtractLineSegments(src, line, cfg) {
			for i := s.Start; i < s.End; i++ {
				inside[i] = true
			}
		}
		for i, idx := range line.Positions() {
			if !inside[i] && r.Pix[idx] != src.Pix[idx] {
				t.Errorf("pixel %d outside any segment changed: %v -> %v", idx, src.Pix[idx], r.Pix[idx])
			}
		}
	}
}

func TestAlphaTravelsWithPixel(t *testing.T) {
	// Alpha encodes the original position so any channel/alpha split shows up.
	r := raster.New(6, 1)
	reds := []uint8{90, 10, 250, 40, 40, 0}
	for x, v := range reds {
		r.Set(x, 0, raster.Pixel{R: v, G: uint8(x), B: 255 - v, A: uint8(x * 10)})
	}
	src := r.Clone()
	cfg := Config{Metric: metric.Red, Direction: raster.Rows, Order: Ascending, Thresholds: FullRange}
	if _, err := Sort(context.Background(), r, cfg); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	for _, p := range r.Pix {
		orig := src.Pix[int(p.G)]
		if p != orig {
			t.Errorf("pixel fields split: got %v, original %v", p, orig)
		}
	}
}

func TestScenarioA(t *testing.T) {
	r, _ := raster.FromPixels(2, 1, []raster.Pixel{{0, 0, 0, 255}, {255, 255, 255, 255}})
	cfg := Config{Metric: metric.Brightness, Direction: raster.Rows, Order: Descending, Thresholds: FullRange}
	if _, err := Sort(context.Background(), r, cfg); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	want := []raster.Pixel{{255, 255, 255, 255}, {0, 0, 0, 255}}
	if diff := cmp.Diff(want, r.Pix); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioB(t *testing.T) {
	in := []raster.Pixel{{0, 0, 0, 255}, {255, 255, 255, 255}}
	r, _ := raster.FromPixels(2, 1, append([]raster.Pixel(nil), in...))
	cfg := Config{Metric: metric.Brightness, Direction: raster.Rows, Order: Descending, Thresholds: ThresholdRange{255, 255}}
	if _, err := Sort(context.Background(), r, cfg); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if diff := cmp.Diff(in, r.Pix); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioC(t *testing.T) {
	in := []raster.Pixel{
		{R: 200, G: 1, B: 11, A: 101},
		{R: 50, G: 2, B: 12, A: 102},
		{R: 120, G: 3, B: 13, A: 103},
		{R: 0, G: 4, B: 14, A: 104},
	}
	r, _ := raster.FromPixels(1, 4, append([]raster.Pixel(nil), in...))
	cfg := Config{Metric: metric.Red, Direction: raster.Columns, Order: Ascending, Thresholds: FullRange}
	if _, err := Sort(context.Background(), r, cfg); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	want := []raster.Pixel{in[3], in[1], in[2], in[0]}
	if diff := cmp.Diff(want, r.Pix); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioDSecondPassIsNoOp(t *testing.T) {
	src := createRandomRaster(16, 16, 5)
	windows := []ThresholdRange{FullRange, {40, 200}, {100, 180}, {0, 128}}
	for _, w := range windows {
		for _, cfg := range allConfigs(w) {
			r := src.Clone()
			if _, err := Sort(context.Background(), r, cfg); err != nil {
				t.Fatalf("%s: first pass failed: %v", cfg, err)
			}
			once := r.Clone()
			if _, err := Sort(context.Background(), r, cfg); err != nil {
				t.Fatalf("%s: second pass failed: %v", cfg, err)
			}
			if !r.Equal(once) {
				t.Errorf("%s: second pass changed the raster", cfg)
			}
		}
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	src := createRandomRaster(31, 23, 6)
	for _, cfg := range []Config{
		{Metric: metric.Hue, Direction: raster.Rows, Order: Ascending, Thresholds: ThresholdRange{30, 220}},
		{Metric: metric.Lightness, Direction: raster.Columns, Order: Descending, Thresholds: ThresholdRange{50, 256}},
	} {
		want := src.Clone()
		if _, err := Sort(context.Background(), want, cfg); err != nil {
			t.Fatalf("Sort failed: %v", err)
		}
		for _, workers := range []int{0, 2, 3, 8, 64} {
			got := src.Clone()
			stats, err := Sort(context.Background(), got, cfg, WithWorkers(workers))
			if err != nil {
				t.Fatalf("Sort with %d workers failed: %v", workers, err)
			}
			if stats.Lines != got.LineCount(cfg.Direction) {
				t.Errorf("%d workers: expected %d lines, got %d", workers, got.LineCount(cfg.Direction), stats.Lines)
			}
			if !got.Equal(want) {
				t.Errorf("%s: result with %d workers differs from sequential", cfg, workers)
			}
		}
	}
}

func TestProgressReportsEveryLine(t *testing.T) {
	r := createRandomRaster(10, 25, 7)
	var (
		mu    sync.Mutex
		calls []int
	)
	_, err := Sort(context.Background(), r, DefaultConfig(), WithWorkers(4), WithProgress(func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		if total != 25 {
			t.Errorf("Expected total 25, got %d", total)
		}
		calls = append(calls, completed)
	}))
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if len(calls) != 25 {
		t.Fatalf("Expected 25 progress calls, got %d", len(calls))
	}
	seen := make(map[int]bool)
	for _, c := range calls {
		seen[c] = true
	}
	for i := 1; i <= 25; i++ {
		if !seen[i] {
			t.Errorf("Progress value %d never reported", i)
		}
	}
}

func TestProgressIsOrderedAcrossWorkers(t *testing.T) {
	r := createRandomRaster(4, 2000, 11)
	var calls []int
	_, err := Sort(context.Background(), r, DefaultConfig(), WithWorkers(16), WithProgress(func(completed, total int) {
		calls = append(calls, completed)
	}))
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	for i, c := range calls {
		if c != i+1 {
			t.Fatalf("Progress call %d reported %d, want %d", i, c, i+1)
		}
	}
	if len(calls) != 2000 {
		t.Errorf("Expected 2000 progress calls, got %d", len(calls))
	}
}

func TestSortCancelledBetweenLines(t *testing.T) {
	r := createRandomRaster(8, 40, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats, err := Sort(ctx, r, DefaultConfig(), WithProgress(func(completed, total int) {
		if completed == 5 {
			cancel()
		}
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if stats.Lines != 5 {
		t.Errorf("Expected 5 completed lines before cancellation, got %d", stats.Lines)
	}
}

func TestSortRejectsInvalidConfig(t *testing.T) {
	r := raster.New(2, 2)
	cfg := DefaultConfig()
	cfg.Metric = metric.Metric(-1)
	if _, err := Sort(context.Background(), r, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	line, _ := r.Line(raster.Rows, 0)
	if _, err := SortLine(r, line, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SortLine: expected ErrInvalidConfig, got %v", err)
	}
}

func TestSortLine(t *testing.T) {
	r := createRandomRaster(9, 3, 9)
	src := r.Clone()
	line, _ := r.Line(raster.Rows, 1)
	stats, err := SortLine(r, line, DefaultConfig())
	if err != nil {
		t.Fatalf("SortLine failed: %v", err)
	}
	if stats.Lines != 1 || stats.Segments != 1 || stats.Pixels != 9 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	for _, y := range []int{0, 2} {
		other, _ := r.Line(raster.Rows, y)
		if diff := cmp.Diff(src.Gather(other, nil), r.Gather(other, nil)); diff != "" {
			t.Errorf("Row %d changed (-want +got):\n%s", y, diff)
		}
	}
}

func TestSortEmptyRaster(t *testing.T) {
	r := raster.New(0, 0)
	stats, err := Sort(context.Background(), r, DefaultConfig(), WithWorkers(4))
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

func TestEmptyWindowLogsWarning(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg := DefaultConfig()
	cfg.Thresholds = ThresholdRange{10, 10}
	if _, err := Sort(context.Background(), raster.New(2, 2), cfg); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if !strings.Contains(buf.String(), "threshold window is empty") {
		t.Errorf("Expected warning in log output, got %q", buf.String())
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("Default logger should be disabled")
	}
}

func BenchmarkSort(b *testing.B) {
	src := createRandomRaster(512, 512, 10)
	cfg := Config{Metric: metric.Hue, Direction: raster.Rows, Order: Ascending, Thresholds: ThresholdRange{40, 220}}
	r := src.Clone()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.CopyFrom(src)
		if _, err := Sort(context.Background(), r, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSortParallel(b *testing.B) {
	src := createRandomRaster(512, 512, 10)
	cfg := Config{Metric: metric.Hue, Direction: raster.Columns, Order: Ascending, Thresholds: ThresholdRange{40, 220}}
	r := src.Clone()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.CopyFrom(src)
		if _, err := Sort(context.Background(), r, cfg, WithWorkers(8)); err != nil {
			b.Fatal(err)
		}
	}
}
