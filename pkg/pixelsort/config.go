// Package pixelsort implements the threshold-masked pixel sort: lines of a
// raster are split into segments by a metric window and the pixels inside
// each segment are stably reordered by that metric.
package pixelsort

import (
	"errors"
	"fmt"
	"strings"

	"glitchsort/pkg/metric"
	"glitchsort/pkg/raster"
)

// ErrInvalidConfig is returned when a Config names an undefined metric,
// direction or order.
var ErrInvalidConfig = errors.New("invalid sort config")

// Order is the direction metric values run in within a sorted segment.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	switch o {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder accepts "ascending"/"descending" and "asc"/"desc".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascending", "asc", "up":
		return Ascending, nil
	case "descending", "desc", "down", "reverse":
		return Descending, nil
	}
	return 0, fmt.Errorf("unknown order %q (must be ascending or descending)", s)
}

func (o Order) MarshalText() ([]byte, error) {
	if o != Ascending && o != Descending {
		return nil, fmt.Errorf("invalid order %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Order) UnmarshalText(text []byte) error {
	v, err := ParseOrder(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ThresholdRange is the mask window. A segment starts at a pixel whose metric
// is not below Lower and runs while the metric stays below Upper.
//
// Lower >= Upper is accepted and yields no segments, so a sort pass with such
// a window leaves the raster untouched.
type ThresholdRange struct {
	Lower int
	Upper int
}

// FullRange masks every pixel of every line.
var FullRange = ThresholdRange{Lower: 0, Upper: 256}

// BelowLower reports whether v is excluded before a segment starts.
func (t ThresholdRange) BelowLower(v float64) bool { return v < float64(t.Lower) }

// BelowUpper reports whether v may extend the current segment.
func (t ThresholdRange) BelowUpper(v float64) bool { return v < float64(t.Upper) }

// Empty reports whether the window can never produce a segment.
func (t ThresholdRange) Empty() bool { return t.Lower >= t.Upper }

func (t ThresholdRange) String() string {
	return fmt.Sprintf("[%d,%d)", t.Lower, t.Upper)
}

// Config bundles everything a sort pass needs.
type Config struct {
	Metric     metric.Metric
	Direction  raster.Direction
	Order      Order
	Thresholds ThresholdRange
}

// DefaultConfig sorts rows by ascending brightness over the full range.
func DefaultConfig() Config {
	return Config{
		Metric:     metric.Brightness,
		Direction:  raster.Rows,
		Order:      Ascending,
		Thresholds: FullRange,
	}
}

// Validate checks the enumerated fields. Thresholds are not cross-checked.
func (c Config) Validate() error {
	if !c.Metric.Valid() {
		return fmt.Errorf("%w: metric %d", ErrInvalidConfig, int(c.Metric))
	}
	if c.Direction != raster.Rows && c.Direction != raster.Columns {
		return fmt.Errorf("%w: direction %d", ErrInvalidConfig, int(c.Direction))
	}
	if c.Order != Ascending && c.Order != Descending {
		return fmt.Errorf("%w: order %d", ErrInvalidConfig, int(c.Order))
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s %s %s %s", c.Metric, c.Direction, c.Order, c.Thresholds)
}
