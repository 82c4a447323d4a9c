// Package visualization renders diagnostic views of a raster: the per-pixel
// metric as a grayscale map, the segment mask a sort pass would act on, and
// single lines as thin strips.
package visualization

import (
	"fmt"
	"image"
	"math"
	"path/filepath"

	"glitchsort/internal/models"
	"glitchsort/pkg/codec"
	"glitchsort/pkg/metric"
	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/raster"
)

// Viewer produces preview images for one raster
type Viewer struct {
	r *raster.Raster
}

// NewViewer creates a viewer over r. The raster is read, never modified.
func NewViewer(r *raster.Raster) *Viewer {
	return &Viewer{r: r}
}

// MetricImage maps the metric value of every pixel to a gray level.
func (v *Viewer) MetricImage(m metric.Metric) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, v.r.Width, v.r.Height))
	for i, p := range v.r.Pix {
		img.Pix[i] = uint8(math.Max(0, math.Min(255, m.Evaluate(p))))
	}
	return img
}

// MaskImage marks in white every pixel that a pass with cfg would place
// inside a segment. Everything else is black.
func (v *Viewer) MaskImage(cfg pixelsort.Config) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, v.r.Width, v.r.Height))
	for line := range v.r.Lines(cfg.Direction) {
		for _, seg := range pixelsort.ExtractLineSegments(v.r, line, cfg) {
			for i := seg.Start; i < seg.End; i++ {
				img.Pix[line.Index(i)] = 255
			}
		}
	}
	return img
}

// ExtractLine copies line n in direction d into a strip one pixel thick.
// Rows come out horizontal and columns vertical.
func (v *Viewer) ExtractLine(d raster.Direction, n int) (image.Image, error) {
	line, err := v.r.Line(d, n)
	if err != nil {
		return nil, err
	}
	w, h := line.Len(), 1
	if d == raster.Columns {
		w, h = 1, line.Len()
	}
	strip, err := raster.FromPixels(w, h, v.r.Gather(line, nil))
	if err != nil {
		return nil, err
	}
	return strip.ToImage(), nil
}

// SaveImage writes img as a PNG file.
func SaveImage(img image.Image, filename string) error {
	return codec.SaveFile(filename, raster.FromImage(img), codec.PNG, codec.Options{})
}

// SaveStages writes each stage to outputDir/<name>.png
func SaveStages(outputDir string, stages []models.Stage) error {
	for _, s := range stages {
		if s.Image == nil {
			continue
		}
		filename := filepath.Join(outputDir, s.Name+".png")
		if err := codec.SaveFile(filename, s.Image, codec.PNG, codec.Options{}); err != nil {
			return fmt.Errorf("failed to save stage %s: %w", s.Name, err)
		}
	}
	return nil
}

// SaveLineSequence extracts and saves every line in direction d
func (v *Viewer) SaveLineSequence(d raster.Direction, outputDir string) error {
	for n := 0; n < v.r.LineCount(d); n++ {
		img, err := v.ExtractLine(d, n)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("line_%s_%03d.png", d, n))
		if err := SaveImage(img, filename); err != nil {
			return err
		}
	}
	return nil
}
