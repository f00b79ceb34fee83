// Command phantom4d synthesizes a 4D phantom series from a reference
// volume, organ segmentations, and a sequence of displacement fields,
// streaming the warped series and its ground-truth motion to disk.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phantom4d/pkg/config"
	"phantom4d/pkg/grid"
	"phantom4d/pkg/phantomio"
	"phantom4d/pkg/resample"
	"phantom4d/pkg/respiratory"
	"phantom4d/pkg/synthesis"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		inputPath  string
		segSpecs   []string
		dvfDir     string
		tracePath  string
		splitIdx   int
		outputDir  string
		numPhases  int
	)

	cmd := &cobra.Command{
		Use:   "phantom4d",
		Short: "Synthesize a 4D phantom series from a reference volume and displacement fields",
		Long: "phantom4d warps a static reference volume and its organ segmentations\n" +
			"through a temporal sequence of displacement vector fields, producing a\n" +
			"motion-consistent 4D series with known ground-truth deformation.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.Output.Directory = outputDir
			}
			if tracePath != "" && splitIdx < 1 {
				return errors.New("--trace requires --split (number of inhale reference fields)")
			}
			return run(cfg, inputPath, segSpecs, dvfDir, tracePath, splitIdx, numPhases)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "phantom4d.yaml", "Configuration file (YAML)")
	cmd.Flags().StringVar(&inputPath, "input", "", "Reference volume header (.yaml)")
	cmd.Flags().StringSliceVar(&segSpecs, "seg", nil, "Organ segmentation as id=path, repeatable")
	cmd.Flags().StringVar(&dvfDir, "dvf-dir", "", "Directory of displacement field headers (dvf*.yaml)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Respiratory trace samples (CSV); treats --dvf-dir as reference fields and synthesizes one phase per sample")
	cmd.Flags().IntVar(&splitIdx, "split", 0, "Number of inhale fields at the start of --dvf-dir (trace mode)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (overrides config)")
	cmd.Flags().IntVar(&numPhases, "phases", 0, "Number of phases to synthesize (overrides config)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("dvf-dir")

	return cmd
}

func run(
	cfg *config.Config,
	inputPath string,
	segSpecs []string,
	dvfDir, tracePath string,
	splitIdx, numPhases int,
) error {
	logger, err := buildLogger(cfg.Output.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	reference, err := phantomio.LoadVolume(inputPath)
	if err != nil {
		return errors.Wrap(err, "load reference volume")
	}
	sugar.Infow("loaded reference volume",
		"path", inputPath,
		"shape", reference.Grid.Shape,
		"spacing", reference.Grid.Spacing,
	)

	segs, err := loadSegmentations(segSpecs)
	if err != nil {
		return err
	}

	fields, err := loadFields(dvfDir)
	if err != nil {
		return err
	}
	sugar.Infow("loaded displacement fields", "count", len(fields), "dir", dvfDir)

	if tracePath != "" {
		trace, err := loadTrace(tracePath)
		if err != nil {
			return err
		}
		fields, err = respiratory.SynthesizeSequence(fields, trace, splitIdx)
		if err != nil {
			return errors.Wrap(err, "trace-driven field synthesis")
		}
		if numPhases == 0 {
			// One output phase per trace sample unless overridden.
			numPhases = len(trace)
		}
		sugar.Infow("synthesized displacement sequence from respiratory trace",
			"trace", tracePath,
			"samples", len(trace),
			"inhaleFields", splitIdx,
		)
	}
	if numPhases > 0 {
		cfg.Synthesis.NumPhases = numPhases
	}

	fillMode, err := resample.ParseFillMode(cfg.Synthesis.FillMode)
	if err != nil {
		return err
	}
	params := synthesis.Params{
		NumPhases:       cfg.Synthesis.NumPhases,
		OrganPriority:   cfg.Synthesis.OrganPriority,
		Fill:            resample.Fill{Mode: fillMode, Value: cfg.Synthesis.FillValue},
		Parallelism:     cfg.Synthesis.Parallelism,
		SmoothingWindow: cfg.Synthesis.SmoothingWindow,
	}

	sink, err := phantomio.NewDirSink(cfg.Output.Directory)
	if err != nil {
		return err
	}
	sink.SaveFields = cfg.Output.SaveFields

	start := time.Now()
	report, err := synthesis.New(params, sugar).Run(
		context.Background(), reference, segs, fields, sink)
	if err != nil {
		return err
	}

	meta := phantomio.NewMetadata(report, params.OrganPriority, dvfDir)
	if err := sink.WriteMetadata(meta); err != nil {
		return err
	}

	fmt.Printf("\nPhantom series synthesized in %.2f seconds\n", time.Since(start).Seconds())
	fmt.Printf("Run %s: %d phases written to %s\n", meta.RunID, report.Phases, cfg.Output.Directory)
	fmt.Printf("Background fill: %s (%.3f)\n", report.FillMode, report.Background)
	fmt.Printf("Max displacement: %.3f mm\n", report.MaxDisplacement)
	if report.TotalConflicts > 0 {
		fmt.Printf("Label conflicts resolved: %d\n", report.TotalConflicts)
	}
	return nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadSegmentations parses id=path organ specs and loads each mask.
func loadSegmentations(specs []string) (synthesis.SegmentationSet, error) {
	segs := make(synthesis.SegmentationSet, 0, len(specs))
	for _, spec := range specs {
		id, path, found := strings.Cut(spec, "=")
		if !found {
			return nil, errors.Newf("segmentation spec %q is not id=path", spec)
		}
		organID, err := strconv.Atoi(id)
		if err != nil {
			return nil, errors.Wrapf(err, "segmentation spec %q", spec)
		}
		mask, err := phantomio.LoadVolume(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load segmentation %d", organID)
		}
		mask.Kind = grid.Label
		segs = append(segs, synthesis.Organ{ID: organID, Mask: mask})
	}
	return segs, nil
}

// loadTrace reads respiratory amplitude samples from a CSV file,
// accepting comma or line separated values.
func loadTrace(path string) (respiratory.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read trace")
	}
	samples := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ' ' || r == '\t'
	})
	if len(samples) == 0 {
		return nil, errors.Newf("trace %s contains no samples", path)
	}
	trace := make(respiratory.Trace, 0, len(samples))
	for _, s := range samples {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "trace sample %q", s)
		}
		trace = append(trace, v)
	}
	return trace, nil
}

// loadFields reads every dvf*.yaml header in dir, ordered by the
// numeric part of the filename so the temporal sequence is preserved.
func loadFields(dir string) (grid.PhaseSequence, error) {
	headers, err := filepath.Glob(filepath.Join(dir, "dvf*.yaml"))
	if err != nil {
		return nil, errors.Wrap(err, "list displacement fields")
	}
	if len(headers) == 0 {
		return nil, errors.Newf("no dvf*.yaml headers found in %s", dir)
	}

	sort.Slice(headers, func(i, j int) bool {
		return extractNumber(headers[i]) < extractNumber(headers[j])
	})

	fields := make(grid.PhaseSequence, 0, len(headers))
	for _, h := range headers {
		f, err := phantomio.LoadField(h)
		if err != nil {
			return nil, errors.Wrapf(err, "load field %s", h)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// extractNumber extracts the numeric part from a filename.
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}
