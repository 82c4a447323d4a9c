package pixelsort

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/raster"
)

func TestExtractSegments(t *testing.T) {
	tests := []struct {
		name string
		keys []float64
		t    ThresholdRange
		want []Segment
	}{
		{
			name: "full range is one segment",
			keys: []float64{5, 250, 0, 100},
			t:    FullRange,
			want: []Segment{{0, 4}},
		},
		{
			name: "empty line",
			keys: nil,
			t:    FullRange,
			want: nil,
		},
		{
			name: "leading pixels below lower are skipped",
			keys: []float64{10, 20, 150, 160},
			t:    ThresholdRange{100, 200},
			want: []Segment{{2, 4}},
		},
		{
			name: "boundary pixel at or above upper splits and is excluded",
			keys: []float64{150, 150, 220, 150, 150},
			t:    ThresholdRange{100, 200},
			want: []Segment{{0, 2}, {3, 5}},
		},
		{
			name: "pixels below lower after the start stay in the segment",
			keys: []float64{150, 50, 150, 250},
			t:    ThresholdRange{100, 200},
			want: []Segment{{0, 3}},
		},
		{
			name: "only the stopping pixel is stepped over",
			keys: []float64{150, 220, 220, 150},
			t:    ThresholdRange{100, 200},
			want: []Segment{{0, 1}, {3, 4}},
		},
		{
			name: "lower equals upper gives no segments",
			keys: []float64{0, 100, 255, 100},
			t:    ThresholdRange{100, 100},
			want: nil,
		},
		{
			name: "lower above upper gives no segments",
			keys: []float64{0, 100, 150, 255},
			t:    ThresholdRange{200, 100},
			want: nil,
		},
		{
			name: "nothing reaches lower",
			keys: []float64{1, 2, 3},
			t:    ThresholdRange{10, 20},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSegments(tt.keys, tt.t)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSegmentsNeverOverlap(t *testing.T) {
	keys := make([]float64, 200)
	for i := range keys {
		keys[i] = float64((i * 37) % 256)
	}
	for lower := 0; lower <= 256; lower += 32 {
		for upper := 0; upper <= 256; upper += 32 {
			segs := ExtractSegments(keys, ThresholdRange{lower, upper})
			prevEnd := -1
			for _, s := range segs {
				if s.Start >= s.End {
					t.Fatalf("[%d,%d): empty segment %v emitted", lower, upper, s)
				}
				if s.Start <= prevEnd {
					t.Fatalf("[%d,%d): segment %v overlaps or touches previous end %d", lower, upper, s, prevEnd)
				}
				if s.End > len(keys) {
					t.Fatalf("[%d,%d): segment %v exceeds line", lower, upper, s)
				}
				prevEnd = s.End
			}
		}
	}
}

func TestSortSegmentStable(t *testing.T) {
	// Equal red values, distinguishable by green.
	in := []raster.Pixel{
		{R: 10, G: 1, A: 255},
		{R: 5, G: 2, A: 255},
		{R: 10, G: 3, A: 255},
		{R: 5, G: 4, A: 255},
	}
	orig := append([]raster.Pixel(nil), in...)

	asc := SortSegment(in, metric.Red, Ascending)
	wantAsc := []raster.Pixel{in[1], in[3], in[0], in[2]}
	if diff := cmp.Diff(wantAsc, asc); diff != "" {
		t.Errorf("Ascending mismatch (-want +got):\n%s", diff)
	}

	desc := SortSegment(in, metric.Red, Descending)
	wantDesc := []raster.Pixel{in[0], in[2], in[1], in[3]}
	if diff := cmp.Diff(wantDesc, desc); diff != "" {
		t.Errorf("Descending mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(orig, in); diff != "" {
		t.Errorf("SortSegment modified its input (-want +got):\n%s", diff)
	}
}

func TestSortSegmentEmpty(t *testing.T) {
	if got := SortSegment(nil, metric.Hue, Ascending); len(got) != 0 {
		t.Errorf("Expected empty result, got %v", got)
	}
}

func TestWrite(t *testing.T) {
	r := raster.New(3, 4)
	col, _ := r.Line(raster.Columns, 1)
	sorted := []raster.Pixel{{R: 1}, {R: 2}}

	if err := Write(r, col, Segment{1, 3}, sorted); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			want := raster.Pixel{}
			if x == 1 && y == 1 {
				want = sorted[0]
			} else if x == 1 && y == 2 {
				want = sorted[1]
			}
			if got := r.At(x, y); got != want {
				t.Errorf("(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}

	if err := Write(r, col, Segment{3, 5}, sorted); !errors.Is(err, ErrSegmentBounds) {
		t.Errorf("Expected ErrSegmentBounds for segment past the line, got %v", err)
	}
	if err := Write(r, col, Segment{0, 3}, sorted); !errors.Is(err, ErrSegmentBounds) {
		t.Errorf("Expected ErrSegmentBounds for length mismatch, got %v", err)
	}
}

func TestExtractLineSegments(t *testing.T) {
	r := raster.New(4, 1)
	for x, v := range []uint8{0, 200, 255, 200} {
		r.Set(x, 0, raster.Pixel{R: v, A: 255})
	}
	line, _ := r.Line(raster.Rows, 0)
	cfg := Config{Metric: metric.Red, Direction: raster.Rows, Thresholds: ThresholdRange{100, 255}}
	got := ExtractLineSegments(r, line, cfg)
	if diff := cmp.Diff([]Segment{{1, 2}, {3, 4}}, got); diff != "" {
		t.Errorf("Segments mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{"asc": Ascending, "Descending": Descending, "reverse": Descending} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseOrder(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseOrder("sideways"); err == nil {
		t.Error("Expected error for unknown order")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	bad := []Config{
		{Metric: metric.Metric(99)},
		{Direction: raster.Direction(7)},
		{Order: Order(3)},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidConfig", c, err)
		}
	}
	// Thresholds are deliberately not cross-checked.
	c := DefaultConfig()
	c.Thresholds = ThresholdRange{200, 10}
	if err := c.Validate(); err != nil {
		t.Errorf("Inverted thresholds should validate, got %v", err)
	}
}
