// Package metric maps a pixel's colour to the scalar used both as the mask
// predicate and as the sort key.
package metric

import (
	"fmt"
	"strings"

	"glitchsort/pkg/raster"
)

// Metric is one of the eight supported sort keys.
type Metric int

const (
	Brightness Metric = iota
	Hue
	Saturation
	Lightness
	Red
	Green
	Blue
	Sum

	numMetrics
)

// evaluators is indexed by Metric. Every case must have an entry; the
// array length ties it to numMetrics at compile time.
var evaluators = [numMetrics]func(raster.Pixel) float64{
	Brightness: brightness,
	Hue:        hue,
	Saturation: saturation,
	Lightness:  lightness,
	Red:        func(p raster.Pixel) float64 { return float64(p.R) },
	Green:      func(p raster.Pixel) float64 { return float64(p.G) },
	Blue:       func(p raster.Pixel) float64 { return float64(p.B) },
	Sum:        sum,
}

var names = [numMetrics]string{
	Brightness: "brightness",
	Hue:        "hue",
	Saturation: "saturation",
	Lightness:  "lightness",
	Red:        "red",
	Green:      "green",
	Blue:       "blue",
	Sum:        "sum",
}

// All returns every metric in declaration order.
func All() []Metric {
	out := make([]Metric, numMetrics)
	for i := range out {
		out[i] = Metric(i)
	}
	return out
}

// Valid reports whether m is one of the eight defined metrics.
func (m Metric) Valid() bool {
	return m >= 0 && m < numMetrics
}

func (m Metric) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Metric(%d)", int(m))
	}
	return names[m]
}

// Parse looks a metric up by name, case-insensitively. "luma" and "luminance"
// are accepted for brightness, "mean" and "average" for sum.
func Parse(s string) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "luma", "luminance":
		return Brightness, nil
	case "mean", "average":
		return Sum, nil
	}
	for i, n := range names {
		if n == key {
			return Metric(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q (must be one of %s)", s, strings.Join(names[:], ", "))
}

func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid metric %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Evaluate computes the metric for p. The result lies in [0, 255].
func (m Metric) Evaluate(p raster.Pixel) float64 {
	if !m.Valid() {
		return 0
	}
	return evaluators[m](p)
}

// Evaluate is the free-function form of Metric.Evaluate.
func Evaluate(p raster.Pixel, m Metric) float64 {
	return m.Evaluate(p)
}

// Keys evaluates m for every pixel in pix, reusing dst when it is large enough.
func Keys(pix []raster.Pixel, m Metric, dst []float64) []float64 {
	dst = dst[:0]
	if !m.Valid() {
		for range pix {
			dst = append(dst, 0)
		}
		return dst
	}
	f := evaluators[m]
	for _, p := range pix {
		dst = append(dst, f(p))
	}
	return dst
}

func brightness(p raster.Pixel) float64 {
	return 0.2126*float64(p.R) + 0.7152*float64(p.G) + 0.0722*float64(p.B)
}

func lightness(p raster.Pixel) float64 {
	hi := max(p.R, p.G, p.B)
	lo := min(p.R, p.G, p.B)
	return (float64(hi) + float64(lo)) / 2
}

func sum(p raster.Pixel) float64 {
	return (float64(p.R) + float64(p.G) + float64(p.B)) / 3
}

func hue(p raster.Pixel) float64 {
	h, _, _ := HSV(p)
	return h * 255
}

func saturation(p raster.Pixel) float64 {
	_, s, _ := HSV(p)
	return s * 255
}

// HSV converts the colour channels of p to hue, saturation and value, each
// in [0, 1). Value may reach 1. Gray pixels have hue 0 and saturation 0.
func HSV(p raster.Pixel) (h, s, v float64) {
	r := float64(p.R) / 255
	g := float64(p.G) / 255
	b := float64(p.B) / 255

	hi := max(r, g, b)
	lo := min(r, g, b)
	delta := hi - lo
	v = hi

	if hi != 0 {
		s = delta / hi
	}
	if delta == 0 {
		return 0, s, v
	}

	switch hi {
	case r:
		h = (g - b) / delta
	case g:
		h = 2 + (b-r)/delta
	default:
		h = 4 + (r-g)/delta
	}
	h /= 6
	if h < 0 {
		h++
	}
	return h, s, v
}
