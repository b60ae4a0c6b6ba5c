package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gpusift/internal/export"
	"gpusift/internal/extract"
	"gpusift/internal/imageio"
)

var (
	extractFlags extract.Options
	outDir       string
	jobs         int
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>...",
	Short: "Extract keypoints and descriptors from images",
	Long: `Extract runs adaptive SIFT extraction on each image and writes a
<name>.sift.yaml file next to it, or into --out when given.

Images are processed concurrently; detection itself is serialized on a single
shared detector.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	d := extract.DefaultOptions()
	f := extractCmd.Flags()
	f.Float64Var(&extractFlags.PeakThreshold, "peak", d.PeakThreshold, "Initial peak threshold")
	f.Float64Var(&extractFlags.EdgeThreshold, "edge", d.EdgeThreshold, "Edge threshold")
	f.IntVar(&extractFlags.TargetFeatureCount, "target", d.TargetFeatureCount, "Keypoints wanted before the threshold stops decaying")
	f.BoolVar(&extractFlags.UseRootNormalization, "root", d.UseRootNormalization, "Use RootSIFT descriptor normalization")
	f.Float64Var(&extractFlags.Downsampling, "downsampling", d.Downsampling, "Downsampling exponent; -1 upsamples 2x")
	f.IntVar(&extractFlags.MaxExtrema, "max-extrema", d.MaxExtrema, "Cap on keypoints per image; non-positive means the default cap")
	f.StringVarP(&outDir, "out", "o", "", "Output directory")
	f.IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Images loaded and formatted concurrently")
}

// extractOptions starts from the config and applies only the flags the user set.
func extractOptions(cmd *cobra.Command) extract.Options {
	opts := cfg.ExtractOptions()
	f := cmd.Flags()
	if f.Changed("peak") {
		opts.PeakThreshold = extractFlags.PeakThreshold
	}
	if f.Changed("edge") {
		opts.EdgeThreshold = extractFlags.EdgeThreshold
	}
	if f.Changed("target") {
		opts.TargetFeatureCount = extractFlags.TargetFeatureCount
	}
	if f.Changed("root") {
		opts.UseRootNormalization = extractFlags.UseRootNormalization
	}
	if f.Changed("downsampling") {
		opts.Downsampling = extractFlags.Downsampling
	}
	if f.Changed("max-extrema") {
		opts.MaxExtrema = extractFlags.MaxExtrema
	}
	return opts
}

func runExtract(cmd *cobra.Command, args []string) error {
	opts := extractOptions(cmd)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	a := newApp()
	defer a.close()

	var mu sync.Mutex
	stdout := cmd.OutOrStdout()

	g, ctx := errgroup.WithContext(a.shutdown.Context())
	g.SetLimit(max(1, jobs))
	for _, path := range args {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			line, err := a.extractFile(path, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			mu.Lock()
			defer mu.Unlock()
			_, err = io.WriteString(stdout, line)
			return err
		})
	}

	err := g.Wait()
	a.logTimings()
	return err
}

// extractFile runs one image end to end and returns its summary line.
func (a *app) extractFile(path string, opts extract.Options) (string, error) {
	img, err := imageio.Load(path)
	if err != nil {
		return "", err
	}

	res, err := a.extractor.Extract(img, opts)
	if err != nil {
		return "", err
	}

	out := outputPath(path, outDir)
	if err := export.WriteFile(out, export.NewDocument(filepath.Base(path), img, res)); err != nil {
		return "", err
	}

	if res == nil {
		return fmt.Sprintf("%s: empty image -> %s\n", path, out), nil
	}
	return fmt.Sprintf("%s: %d keypoints, %d rows, peak %g after %d attempts -> %s\n",
		path, res.Features, res.Points.Rows, res.PeakThreshold, res.Attempts, out), nil
}

func outputPath(image, dir string) string {
	base := filepath.Base(image)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".sift.yaml"
	if dir == "" {
		dir = filepath.Dir(image)
	}
	return filepath.Join(dir, name)
}
