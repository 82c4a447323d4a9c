// Package analysis computes statistics over the metric values of a raster:
// summaries used to pick thresholds, quantile-based automatic windows, and a
// before/after comparison of a sort pass.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/raster"
)

// ErrDimensionMismatch is returned when comparing rasters of different sizes.
var ErrDimensionMismatch = errors.New("raster dimensions differ")

// numBins is one histogram bin per integer metric value.
const numBins = 256

// Summary describes the distribution of one metric over a raster.
type Summary struct {
	Metric metric.Metric
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	// Entropy of the 256-bin histogram, in bits.
	Entropy float64
	// Histogram counts pixels per integer metric value.
	Histogram []float64
}

// Comparison measures how much a sort pass changed a raster.
type Comparison struct {
	// ChangedFraction is the share of positions holding a different pixel.
	ChangedFraction float64
	// KeyRMSE is the root mean square difference of metric values per position.
	KeyRMSE float64
	// KeyCorrelation is the Pearson correlation of metric values per position.
	// It is 1 for identical rasters and 0 when either side is constant.
	KeyCorrelation float64
}

func keysOf(r *raster.Raster, m metric.Metric) []float64 {
	return metric.Keys(r.Pix, m, make([]float64, 0, len(r.Pix)))
}

func sortedKeys(r *raster.Raster, m metric.Metric) []float64 {
	keys := keysOf(r, m)
	sort.Float64s(keys)
	return keys
}

// Profile summarises metric m over every pixel of r.
func Profile(r *raster.Raster, m metric.Metric) Summary {
	s := Summary{Metric: m, Histogram: make([]float64, numBins)}
	keys := sortedKeys(r, m)
	if len(keys) == 0 {
		return s
	}

	s.Mean, s.StdDev = stat.MeanStdDev(keys, nil)
	if len(keys) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(keys)
	s.Max = floats.Max(keys)

	dividers := make([]float64, numBins+1)
	floats.Span(dividers, 0, numBins)
	s.Histogram = stat.Histogram(nil, dividers, keys, nil)

	p := make([]float64, numBins)
	copy(p, s.Histogram)
	floats.Scale(1/float64(len(keys)), p)
	s.Entropy = stat.Entropy(p) / math.Ln2

	return s
}

// SuggestThresholds returns a window covering the metric values between the
// lo and hi empirical quantiles of r. The upper bound is exclusive, so it is
// placed one above the hi quantile's integer value.
func SuggestThresholds(r *raster.Raster, m metric.Metric, lo, hi float64) (pixelsort.ThresholdRange, error) {
	if lo < 0 || hi > 1 || lo > hi {
		return pixelsort.ThresholdRange{}, fmt.Errorf("invalid quantiles %g..%g", lo, hi)
	}
	keys := sortedKeys(r, m)
	if len(keys) == 0 {
		return pixelsort.FullRange, nil
	}
	qLo := stat.Quantile(lo, stat.Empirical, keys, nil)
	qHi := stat.Quantile(hi, stat.Empirical, keys, nil)

	lower := clampThreshold(int(math.Floor(qLo)))
	upper := clampThreshold(int(math.Floor(qHi)) + 1)
	return pixelsort.ThresholdRange{Lower: lower, Upper: upper}, nil
}

func clampThreshold(v int) int {
	return max(0, min(256, v))
}

// Compare measures the difference between two rasters of equal size under m.
func Compare(before, after *raster.Raster, m metric.Metric) (Comparison, error) {
	if before.Width != after.Width || before.Height != after.Height {
		return Comparison{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch,
			before.Width, before.Height, after.Width, after.Height)
	}
	n := len(before.Pix)
	if n == 0 {
		return Comparison{KeyCorrelation: 1}, nil
	}

	changed := 0
	for i := range before.Pix {
		if before.Pix[i] != after.Pix[i] {
			changed++
		}
	}

	a := keysOf(before, m)
	b := keysOf(after, m)

	var c Comparison
	c.ChangedFraction = float64(changed) / float64(n)
	c.KeyRMSE = floats.Distance(a, b, 2) / math.Sqrt(float64(n))

	switch {
	case changed == 0:
		c.KeyCorrelation = 1
	case n < 2 || stat.StdDev(a, nil) == 0 || stat.StdDev(b, nil) == 0:
		c.KeyCorrelation = 0
	default:
		c.KeyCorrelation = stat.Correlation(a, b, nil)
	}
	return c, nil
}

// MaskCoverage is the fraction of pixels that a pass with cfg would place
// inside a segment.
func MaskCoverage(r *raster.Raster, cfg pixelsort.Config) float64 {
	if len(r.Pix) == 0 {
		return 0
	}
	covered := 0
	for line := range r.Lines(cfg.Direction) {
		for _, seg := range pixelsort.ExtractLineSegments(r, line, cfg) {
			covered += seg.Len()
		}
	}
	return float64(covered) / float64(len(r.Pix))
}
