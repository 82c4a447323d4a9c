package models

import (
	"time"

	"glitchsort/pkg/raster"
)

// Stage is one named intermediate image of a pipeline run
type Stage struct {
	// Name is used as the directory name when the stage is saved
	Name string

	// Image is the stage's raster
	Image *raster.Raster
}

// RunMetrics summarises a finished pipeline run
type RunMetrics struct {
	// InputWidth and InputHeight are the decoded image dimensions
	InputWidth  int
	InputHeight int

	// Width and Height are the dimensions actually sorted, after any downscale
	Width  int
	Height int

	// Config is a printable form of the sort parameters used
	Config string

	// Passes is the number of sort passes that completed
	Passes int

	// Lines, Segments and Pixels accumulate over every pass
	Lines    int
	Segments int
	Pixels   int

	// MaskCoverage is the share of pixels inside a segment on the first pass
	MaskCoverage float64

	// ChangedFraction, KeyRMSE and KeyCorrelation compare the input to the output
	ChangedFraction float64
	KeyRMSE         float64
	KeyCorrelation  float64

	// Duration is the wall time spent sorting
	Duration time.Duration
}
