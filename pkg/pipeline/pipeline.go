// Package pipeline drives a complete file-to-file run: decode the input,
// optionally downscale it and derive thresholds from its statistics, run the
// configured number of sort passes through a session, and write the result
// together with optional intermediate stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	xdraw "golang.org/x/image/draw"

	"glitchsort/internal/models"
	"glitchsort/pkg/analysis"
	"glitchsort/pkg/codec"
	"glitchsort/pkg/config"
	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/raster"
	"glitchsort/pkg/session"
	"glitchsort/pkg/visualization"
)

// Stage names used for intermediary output.
const (
	StageOriginal = "01_original"
	StageMask     = "02_mask"
	StageSorted   = "03_sorted"
)

// Params holds the parameters of one run.
type Params struct {
	// InputFile is any image the codec package can decode.
	InputFile string

	// OutputFile receives the sorted image. Its extension picks the format
	// unless Config.Output.Format is set.
	OutputFile string

	// Config supplies sort, processing and output settings. Nil means
	// config.DefaultConfig().
	Config *config.Config

	// Progress, if set, is called after every line of every pass.
	Progress pixelsort.ProgressFunc
}

// Pipeline runs a single input through the sort engine.
type Pipeline struct {
	params *Params
	cfg    *config.Config

	// input is the raster actually sorted, after any downscale
	input   *raster.Raster
	result  *raster.Raster
	sortCfg pixelsort.Config

	metrics models.RunMetrics
}

// NewPipeline creates a pipeline for the given parameters.
func NewPipeline(params *Params) *Pipeline {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Pipeline{params: params, cfg: cfg}
}

// Process runs every step. It stops at the first error; a cancelled context
// aborts the current pass and nothing is written.
func (p *Pipeline) Process(ctx context.Context) error {
	log := pixelsort.Logger()

	if err := p.cfg.Validate(); err != nil {
		return err
	}

	// Step 1: decode the input
	log.Info("loading input", "step", 1, "file", p.params.InputFile)
	if err := p.load(); err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}

	// Step 2: optional downscale
	if p.cfg.Processing.MaxDimension > 0 {
		log.Info("downscaling", "step", 2, "maxDimension", p.cfg.Processing.MaxDimension)
		p.input = downscale(p.input, p.cfg.Processing.MaxDimension)
	}
	p.metrics.Width, p.metrics.Height = p.input.Width, p.input.Height

	// Step 3: resolve the sort configuration
	log.Info("resolving sort configuration", "step", 3)
	if err := p.resolveSortConfig(); err != nil {
		return err
	}
	p.metrics.Config = p.sortCfg.String()
	p.metrics.MaskCoverage = analysis.MaskCoverage(p.input, p.sortCfg)

	// Step 4: sort passes
	log.Info("sorting", "step", 4, "config", p.metrics.Config, "passes", p.cfg.Processing.Passes)
	if err := p.sort(ctx); err != nil {
		return err
	}

	// Step 5: compare before and after
	cmp, err := analysis.Compare(p.input, p.result, p.sortCfg.Metric)
	if err != nil {
		return fmt.Errorf("failed to compare result: %w", err)
	}
	p.metrics.ChangedFraction = cmp.ChangedFraction
	p.metrics.KeyRMSE = cmp.KeyRMSE
	p.metrics.KeyCorrelation = cmp.KeyCorrelation
	log.Info("comparison", "step", 5, "changed", cmp.ChangedFraction, "rmse", cmp.KeyRMSE)

	// Step 6: write output
	log.Info("saving output", "step", 6, "file", p.params.OutputFile)
	if err := p.save(); err != nil {
		return err
	}

	if p.cfg.Output.SaveIntermediaryResults {
		if err := visualization.SaveStages(p.cfg.Output.IntermediaryDir, p.Stages()); err != nil {
			log.Warn("failed to save intermediary results", "error", err)
		}
	}
	return nil
}

func (p *Pipeline) load() error {
	r, format, err := codec.LoadFile(p.params.InputFile)
	if err != nil {
		return err
	}
	pixelsort.Logger().Debug("decoded input", "format", format, "raster", r.String())
	p.input = r
	p.metrics.InputWidth, p.metrics.InputHeight = r.Width, r.Height
	return nil
}

// downscale shrinks r so that neither side exceeds maxDim, keeping the aspect
// ratio. Rasters already within bounds are returned as is.
func downscale(r *raster.Raster, maxDim int) *raster.Raster {
	longest := max(r.Width, r.Height)
	if longest <= maxDim {
		return r
	}
	w := max(1, r.Width*maxDim/longest)
	h := max(1, r.Height*maxDim/longest)

	src := r.ToImage()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return raster.FromImage(dst)
}

func (p *Pipeline) resolveSortConfig() error {
	sc, err := p.cfg.SortConfig()
	if err != nil {
		return err
	}
	if p.cfg.Processing.AutoThreshold {
		q := p.cfg.Processing.AutoQuantiles
		t, err := analysis.SuggestThresholds(p.input, sc.Metric, q[0], q[1])
		if err != nil {
			return fmt.Errorf("failed to derive thresholds: %w", err)
		}
		pixelsort.Logger().Info("automatic thresholds", "metric", sc.Metric.String(),
			"window", t.String(), "quantiles", q)
		sc.Thresholds = t
	}
	p.sortCfg = sc
	return nil
}

func (p *Pipeline) sort(ctx context.Context) error {
	reg, err := p.cfg.Registry()
	if err != nil {
		return err
	}
	opts := []session.Option{
		session.WithWorkers(p.cfg.Processing.NumWorkers),
		session.WithPresets(reg),
	}
	if p.params.Progress != nil {
		opts = append(opts, session.WithProgress(p.params.Progress))
	}
	sess := session.New(opts...)
	if err := sess.Load(p.input); err != nil {
		return err
	}

	start := time.Now()
	for pass := 0; pass < p.cfg.Processing.Passes; pass++ {
		if err := sess.SortWith(ctx, p.sortCfg); err != nil {
			return fmt.Errorf("pass %d: %w", pass+1, err)
		}
		st := sess.LastStats()
		p.metrics.Passes++
		p.metrics.Lines += st.Lines
		p.metrics.Segments += st.Segments
		p.metrics.Pixels += st.Pixels
	}
	p.metrics.Duration = time.Since(start)

	p.result, err = sess.Export()
	return err
}

func (p *Pipeline) save() error {
	var (
		f   codec.Format
		err error
	)
	if p.cfg.Output.Format != "" {
		if f, err = codec.ParseFormat(p.cfg.Output.Format); err != nil {
			return err
		}
	}
	opts := codec.Options{JPEGQuality: p.cfg.Output.JPEGQuality}
	if err := codec.SaveFile(p.params.OutputFile, p.result, f, opts); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}
	return nil
}

// Stages returns the intermediate images of the last run: the input, the
// segment mask of the first pass, and the result. Stages not yet produced are
// omitted.
func (p *Pipeline) Stages() []models.Stage {
	var stages []models.Stage
	if p.input == nil {
		return stages
	}
	stages = append(stages,
		models.Stage{Name: StageOriginal, Image: p.input},
		models.Stage{Name: StageMask, Image: raster.FromImage(visualization.NewViewer(p.input).MaskImage(p.sortCfg))},
	)
	if p.result != nil {
		stages = append(stages, models.Stage{Name: StageSorted, Image: p.result})
	}
	return stages
}

// SortConfig returns the configuration the passes ran with.
func (p *Pipeline) SortConfig() pixelsort.Config {
	return p.sortCfg
}

// Result returns the sorted raster, or an error before a successful run.
func (p *Pipeline) Result() (*raster.Raster, error) {
	if p.result == nil {
		return nil, errors.New("pipeline has not produced a result")
	}
	return p.result, nil
}

// GetMetrics returns the metrics of the last run.
func (p *Pipeline) GetMetrics() models.RunMetrics {
	return p.metrics
}
