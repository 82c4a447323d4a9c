// Package raster holds the in-memory RGBA8 image the sort engine works on.
package raster

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Pixel is one RGBA8 sample. Channels are non-premultiplied.
type Pixel struct {
	R, G, B, A uint8
}

// Raster is a width x height grid of pixels stored row-major.
// len(Pix) == Width*Height at all times.
type Raster struct {
	Width  int
	Height int
	Pix    []Pixel
}

// New creates a transparent black raster with the given dimensions.
func New(width, height int) *Raster {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]Pixel, width*height),
	}
}

// FromPixels wraps a pixel buffer, checking that its length matches the dimensions.
func FromPixels(width, height int, pix []Pixel) (*Raster, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("buffer holds %d pixels, want %d for %dx%d", len(pix), width*height, width, height)
	}
	return &Raster{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any image into a raster. The source is first drawn into a
// non-premultiplied NRGBA buffer so channel values match what a decoder reports.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*bounds.Dx() {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		xdraw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, xdraw.Src)
	}

	r := New(bounds.Dx(), bounds.Dy())
	for i := range r.Pix {
		o := i * 4
		r.Pix[i] = Pixel{
			R: nrgba.Pix[o+0],
			G: nrgba.Pix[o+1],
			B: nrgba.Pix[o+2],
			A: nrgba.Pix[o+3],
		}
	}
	return r
}

// ToImage copies the raster into a new *image.NRGBA.
func (r *Raster) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, p := range r.Pix {
		o := i * 4
		img.Pix[o+0] = p.R
		img.Pix[o+1] = p.G
		img.Pix[o+2] = p.B
		img.Pix[o+3] = p.A
	}
	return img
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := &Raster{Width: r.Width, Height: r.Height, Pix: make([]Pixel, len(r.Pix))}
	copy(out.Pix, r.Pix)
	return out
}

// CopyFrom overwrites r with the contents of src. Dimensions must match.
func (r *Raster) CopyFrom(src *Raster) error {
	if r.Width != src.Width || r.Height != src.Height {
		return fmt.Errorf("dimension mismatch: %dx%d vs %dx%d", r.Width, r.Height, src.Width, src.Height)
	}
	copy(r.Pix, src.Pix)
	return nil
}

// Equal reports whether both rasters have the same dimensions and pixels.
func (r *Raster) Equal(other *Raster) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Width != other.Width || r.Height != other.Height || len(r.Pix) != len(other.Pix) {
		return false
	}
	for i := range r.Pix {
		if r.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// At returns the pixel at (x, y), or the zero pixel when out of bounds.
func (r *Raster) At(x, y int) Pixel {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return Pixel{}
	}
	return r.Pix[y*r.Width+x]
}

// Set writes the pixel at (x, y). Out of bounds writes are ignored.
func (r *Raster) Set(x, y int, p Pixel) {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return
	}
	r.Pix[y*r.Width+x] = p
}

func (r *Raster) String() string {
	return fmt.Sprintf("<raster %dx%d>", r.Width, r.Height)
}
