package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"glitchsort/pkg/config"
	"glitchsort/pkg/metric"
	"glitchsort/pkg/pipeline"
	"glitchsort/pkg/pixelsort"
	"glitchsort/pkg/raster"
	"glitchsort/pkg/visualization"
)

// cliFlags holds every command line option
type cliFlags struct {
	inputFile        string
	outputFile       string
	configPath       string
	presetName       string
	metric           metric.Metric
	direction        raster.Direction
	order            pixelsort.Order
	lower            int
	upper            int
	workers          int
	passes           int
	maxDim           int
	autoThreshold    bool
	saveIntermediary bool
	intermediaryDir  string
	extractLines     bool
	linesDir         string
	listPresets      bool
	writeConfig      string
	verbose          bool
}

// sortFieldFlags are ignored when -preset is given
var sortFieldFlags = []string{"metric", "direction", "order", "lower", "upper"}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.inputFile, "input", "", "Image to sort (png, jpeg, gif, bmp, tiff, webp)")
	fs.StringVar(&f.outputFile, "output", "sorted.png", "Output image; the extension selects the format")
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.presetName, "preset", "", "Named preset (see -list-presets); overrides -metric, -direction, -order, -lower and -upper")
	fs.TextVar(&f.metric, "metric", metric.Brightness, "Sort key: brightness, hue, saturation, lightness, red, green, blue, sum")
	fs.TextVar(&f.direction, "direction", raster.Rows, "rows or columns")
	fs.TextVar(&f.order, "order", pixelsort.Ascending, "ascending or descending")
	fs.IntVar(&f.lower, "lower", 0, "Lower threshold, inclusive (0..256)")
	fs.IntVar(&f.upper, "upper", 0, "Upper threshold, exclusive (0..256)")
	fs.IntVar(&f.workers, "workers", 0, "Worker goroutines per pass (0 uses all CPUs)")
	fs.IntVar(&f.passes, "passes", 0, "Number of sort passes")
	fs.IntVar(&f.maxDim, "max-dim", 0, "Downscale so neither side exceeds this (0 keeps size)")
	fs.BoolVar(&f.autoThreshold, "auto-threshold", false, "Derive thresholds from metric quantiles of the image")
	fs.BoolVar(&f.saveIntermediary, "save-intermediary", false, "Save original, mask and sorted stages")
	fs.StringVar(&f.intermediaryDir, "intermediary-dir", "", "Directory for intermediary results")
	fs.BoolVar(&f.extractLines, "extract-lines", false, "Save every sorted line as a strip image")
	fs.StringVar(&f.linesDir, "lines-dir", "sorted_lines", "Directory for extracted line strips")
	fs.BoolVar(&f.listPresets, "list-presets", false, "List available presets and exit")
	fs.StringVar(&f.writeConfig, "write-config", "", "Write a default configuration file to this path and exit")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	return f
}

// apply copies the flags given explicitly on the command line over cfg. It
// returns the sort field flags that a -preset flag makes ineffective.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *config.Config) (shadowed []string) {
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if set["preset"] {
		cfg.Sort.Preset = f.presetName
	}
	if set["metric"] {
		cfg.Sort.Metric = f.metric
	}
	if set["direction"] {
		cfg.Sort.Direction = f.direction
	}
	if set["order"] {
		cfg.Sort.Order = f.order
	}
	if set["lower"] {
		cfg.Sort.ThresholdLower = f.lower
	}
	if set["upper"] {
		cfg.Sort.ThresholdUpper = f.upper
	}
	if set["workers"] {
		cfg.Processing.NumWorkers = f.workers
		if f.workers == 0 {
			cfg.Processing.NumWorkers = runtime.NumCPU()
		}
	}
	if set["passes"] {
		cfg.Processing.Passes = f.passes
	}
	if set["max-dim"] {
		cfg.Processing.MaxDimension = f.maxDim
	}
	if set["auto-threshold"] {
		cfg.Processing.AutoThreshold = f.autoThreshold
	}
	if set["save-intermediary"] {
		cfg.Output.SaveIntermediaryResults = f.saveIntermediary
	}
	if set["intermediary-dir"] {
		cfg.Output.IntermediaryDir = f.intermediaryDir
	}
	if set["verbose"] {
		cfg.Output.Verbose = f.verbose
	}

	if cfg.Sort.Preset != "" {
		for _, name := range sortFieldFlags {
			if set[name] {
				shadowed = append(shadowed, "-"+name)
			}
		}
	}
	return shadowed
}

// saveLines writes every line of result along d as a strip under dir
func saveLines(result *raster.Raster, d raster.Direction, dir string) error {
	return visualization.NewViewer(result).SaveLineSequence(d, filepath.Join(dir, d.String()))
}

func main() {
	// Parse command line arguments
	flags := registerFlags(flag.CommandLine)
	flag.Parse()

	if flags.writeConfig != "" {
		if err := config.CreateDefaultConfigFile(flags.writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", flags.writeConfig)
		return
	}

	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(flags.configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	shadowed := flags.apply(flag.CommandLine, cfg)

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	pixelsort.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if len(shadowed) > 0 {
		pixelsort.Logger().Warn("preset overrides explicit sort flags",
			"preset", cfg.Sort.Preset, "ignored", strings.Join(shadowed, " "))
	}

	if flags.listPresets {
		reg, err := cfg.Registry()
		if err != nil {
			log.Fatalf("Invalid presets: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSETTINGS\tDESCRIPTION")
		for _, p := range reg.All() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Config, p.Description)
		}
		tw.Flush()
		return
	}

	// Validate inputs
	if flags.inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("GLITCHSORT: threshold-masked pixel sorting")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lastPct := -1
	params := &pipeline.Params{
		InputFile:  flags.inputFile,
		OutputFile: flags.outputFile,
		Config:     cfg,
		Progress: func(completed, total int) {
			pct := completed * 100 / total
			if pct/10 != lastPct/10 {
				lastPct = pct
				fmt.Printf("\rProgress: %3d%%", pct)
			}
		},
	}

	p := pipeline.NewPipeline(params)
	startTime := time.Now()
	if err := p.Process(ctx); err != nil {
		fmt.Println()
		log.Fatalf("Sorting failed: %v", err)
	}
	processingTime := time.Since(startTime)

	m := p.GetMetrics()
	fmt.Printf("\n\nSorting completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("Output image saved to: %s\n\n", flags.outputFile)

	fmt.Println("Run summary:")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Input size:        %dx%d\n", m.InputWidth, m.InputHeight)
	if m.Width != m.InputWidth || m.Height != m.InputHeight {
		fmt.Printf("Sorted size:       %dx%d\n", m.Width, m.Height)
	}
	fmt.Printf("Configuration:     %s\n", m.Config)
	fmt.Printf("Passes:            %d\n", m.Passes)
	fmt.Printf("Segments sorted:   %d\n", m.Segments)
	fmt.Printf("Mask coverage:     %.1f%%\n", m.MaskCoverage*100)
	fmt.Printf("Pixels moved:      %.1f%%\n", m.ChangedFraction*100)
	fmt.Printf("Key RMSE:          %.3f\n", m.KeyRMSE)
	fmt.Printf("Key correlation:   %.3f\n", m.KeyCorrelation)
	fmt.Printf("Sort time:         %v\n", m.Duration.Round(time.Millisecond))

	// Line strips follow the direction the passes ran in
	if flags.extractLines {
		result, err := p.Result()
		if err != nil {
			log.Fatalf("No result to extract lines from: %v", err)
		}
		d := p.SortConfig().Direction
		fmt.Printf("\nSaving %s strips to: %s\n", d, filepath.Join(flags.linesDir, d.String()))
		if err := saveLines(result, d, flags.linesDir); err != nil {
			log.Printf("Warning: Failed to save line strips: %v", err)
		}
	}

	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
		fmt.Printf("- %s: decoded input\n", pipeline.StageOriginal)
		fmt.Printf("- %s: segment mask of the first pass\n", pipeline.StageMask)
		fmt.Printf("- %s: final result\n", pipeline.StageSorted)
	}
}
