package raster

import (
	"fmt"
	"iter"
	"strings"
)

// Direction selects whether lines run horizontally or vertically.
type Direction int

const (
	Rows Direction = iota
	Columns
)

func (d Direction) String() string {
	switch d {
	case Rows:
		return "rows"
	case Columns:
		return "columns"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts "rows"/"columns" and the short forms "row", "col",
// "horizontal" and "vertical".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rows", "row", "horizontal", "h":
		return Rows, nil
	case "columns", "column", "cols", "col", "vertical", "v":
		return Columns, nil
	}
	return 0, fmt.Errorf("unknown direction %q (must be rows or columns)", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if d != Rows && d != Columns {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Line is a single row or column of a raster. Positions along the line run
// left to right for rows and top to bottom for columns.
type Line struct {
	first  int // buffer offset of position 0
	stride int // buffer distance between consecutive positions
	length int
}

// Len returns the number of positions on the line.
func (l Line) Len() int { return l.length }

// Index maps a position along the line to an offset into Raster.Pix.
func (l Line) Index(i int) int { return l.first + i*l.stride }

// Positions yields (position, buffer offset) pairs in scan order. The sequence
// can be ranged over any number of times.
func (l Line) Positions() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for i := 0; i < l.length; i++ {
			if !yield(i, l.first+i*l.stride) {
				return
			}
		}
	}
}

// LineCount is the number of lines in the given direction.
func (r *Raster) LineCount(d Direction) int {
	if d == Columns {
		return r.Width
	}
	return r.Height
}

// Line returns line n in direction d.
func (r *Raster) Line(d Direction, n int) (Line, error) {
	if n < 0 || n >= r.LineCount(d) {
		return Line{}, fmt.Errorf("line %d out of range for %s of %v", n, d, r)
	}
	if d == Columns {
		return Line{first: n, stride: r.Width, length: r.Height}, nil
	}
	return Line{first: n * r.Width, stride: 1, length: r.Width}, nil
}

// Lines yields every line in direction d in increasing order.
func (r *Raster) Lines(d Direction) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		for n := 0; n < r.LineCount(d); n++ {
			l, _ := r.Line(d, n)
			if !yield(l) {
				return
			}
		}
	}
}

// Gather copies the pixels of a line into dst, growing it if needed.
func (r *Raster) Gather(l Line, dst []Pixel) []Pixel {
	dst = dst[:0]
	for _, idx := range l.Positions() {
		dst = append(dst, r.Pix[idx])
	}
	return dst
}
