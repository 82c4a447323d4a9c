package pixelsort

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/raster"
)

// ErrSegmentBounds is returned by Write when a segment does not fit its line
// or the sorted pixels do not match the segment length.
var ErrSegmentBounds = errors.New("segment out of bounds")

// Segment is a half-open run [Start, End) of positions along a line.
type Segment struct {
	Start int
	End   int
}

// Len returns the number of positions in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// ExtractSegments scans metric keys of one line from position 0 and returns
// its segments in increasing order:
//
//  1. skip keys below Lower
//  2. the segment starts at the cursor
//  3. extend while keys are below Upper
//  4. emit [start, cursor) if non-empty
//  5. step over the pixel that stopped the segment and repeat
//
// Each key is visited at most once. Segments never overlap.
func ExtractSegments(keys []float64, t ThresholdRange) []Segment {
	var segments []Segment
	n := len(keys)
	i := 0
	for i < n {
		for i < n && t.BelowLower(keys[i]) {
			i++
		}
		start := i
		for i < n && t.BelowUpper(keys[i]) {
			i++
		}
		if start < i {
			segments = append(segments, Segment{Start: start, End: i})
		}
		i++
	}
	return segments
}

// ExtractLineSegments evaluates cfg.Metric along line and extracts its segments.
func ExtractLineSegments(r *raster.Raster, line raster.Line, cfg Config) []Segment {
	keys := metric.Keys(r.Gather(line, nil), cfg.Metric, nil)
	return ExtractSegments(keys, cfg.Thresholds)
}

type keyedPixel struct {
	key float64
	p   raster.Pixel
}

// compareKeyed orders by key; descending flips the comparison instead of
// reversing the result so equal keys keep their input order either way.
func compareKeyed(o Order) func(a, b keyedPixel) int {
	if o == Descending {
		return func(a, b keyedPixel) int { return cmp.Compare(b.key, a.key) }
	}
	return func(a, b keyedPixel) int { return cmp.Compare(a.key, b.key) }
}

// sortKeyed stably sorts pixels by their precomputed keys into dst.
// scratch is reused between calls to avoid per-segment allocation.
func sortKeyed(pixels []raster.Pixel, keys []float64, o Order, scratch []keyedPixel, dst []raster.Pixel) []keyedPixel {
	scratch = scratch[:0]
	for i, p := range pixels {
		scratch = append(scratch, keyedPixel{key: keys[i], p: p})
	}
	slices.SortStableFunc(scratch, compareKeyed(o))
	for i := range scratch {
		dst[i] = scratch[i].p
	}
	return scratch
}

// SortSegment returns a stable permutation of pixels ordered by metric m.
// Each pixel's metric is computed exactly once. The input is not modified.
func SortSegment(pixels []raster.Pixel, m metric.Metric, o Order) []raster.Pixel {
	keys := metric.Keys(pixels, m, make([]float64, 0, len(pixels)))
	out := make([]raster.Pixel, len(pixels))
	sortKeyed(pixels, keys, o, make([]keyedPixel, 0, len(pixels)), out)
	return out
}

// Write copies sorted into r at the positions of seg along line. Nothing
// outside the segment is touched.
func Write(r *raster.Raster, line raster.Line, seg Segment, sorted []raster.Pixel) error {
	if seg.Start < 0 || seg.End > line.Len() || seg.Start > seg.End {
		return fmt.Errorf("%w: %d..%d on line of length %d", ErrSegmentBounds, seg.Start, seg.End, line.Len())
	}
	if len(sorted) != seg.Len() {
		return fmt.Errorf("%w: %d pixels for segment of length %d", ErrSegmentBounds, len(sorted), seg.Len())
	}
	for i, p := range sorted {
		r.Pix[line.Index(seg.Start+i)] = p
	}
	return nil
}
