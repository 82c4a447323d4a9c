// Package codec decodes image files into rasters and encodes rasters back.
// It is the file-format boundary around the sort engine; the engine itself
// only ever sees raster.Raster values.
package codec

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register the WebP decoder

	"glitchsort/pkg/raster"
)

// ErrUnsupportedFormat is returned when encoding to an unknown format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format names an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	GIF  Format = "gif"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// Options controls encoding.
type Options struct {
	// JPEGQuality in 1..100; zero means 95.
	JPEGQuality int
}

// ParseFormat normalises a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath picks the output format from a file name's extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Decode reads any registered image format (png, jpeg, gif, bmp, tiff, webp).
// It returns the raster and the name of the detected format.
func Decode(r io.Reader) (*raster.Raster, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return raster.FromImage(img), format, nil
}

// Encode writes r to w in the given format.
func Encode(w io.Writer, r *raster.Raster, f Format, opts Options) error {
	img := r.ToImage()
	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		q := opts.JPEGQuality
		if q == 0 {
			q = 95
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case GIF:
		err = gif.Encode(w, img, nil)
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}

// LoadFile decodes the image at path.
func LoadFile(path string) (*raster.Raster, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	r, format, err := Decode(file)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return r, format, nil
}

// SaveFile encodes r to path, creating parent directories as needed. An
// empty format is inferred from the extension.
func SaveFile(path string, r *raster.Raster, f Format, opts Options) (err error) {
	if f == "" {
		if f, err = FormatFromPath(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Encode(file, r, f, opts)
}
