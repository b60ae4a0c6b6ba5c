// Command gpusift extracts SIFT keypoints and descriptors from images.
package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"gpusift/internal/config"
	"gpusift/internal/detector"
	"gpusift/internal/extract"
	"gpusift/internal/logger"
	"gpusift/internal/opencv/sift"
	"gpusift/internal/shutdown"
	"gpusift/internal/timing"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log logger.Logger = logger.NewNop()

	// newBackend is swapped in tests.
	newBackend = func(cfg *config.Config, log logger.Logger) (detector.Device, detector.Builder) {
		return sift.NewDevice(), sift.NewBuilder(cfg.BackendOptions(), log)
	}
)

var rootCmd = &cobra.Command{
	Use:   "gpusift",
	Short: "Adaptive SIFT feature extraction",
	Long: `gpusift detects SIFT keypoints and computes their descriptors.

Extraction lowers the peak threshold until the requested number of keypoints
is found, then writes one row per keypoint orientation: x, y, sigma and angle
in the points table and a 128-value descriptor in the descriptors table.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(checkfitCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	configureRuntime()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configureRuntime favours throughput for large image buffers unless GOGC is set.
func configureRuntime() {
	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(200)
	}
}

// setup loads the config and builds the logger before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}

	level, err := logger.ParseLevel(loaded.Logging.Level)
	if err != nil {
		return err
	}
	switch loaded.Logging.Format {
	case "json":
		log = logger.NewZerolog(cmd.ErrOrStderr(), level)
	case "console":
		log = logger.NewConsoleLogger(cmd.ErrOrStderr(), level)
	default:
		return fmt.Errorf("unknown log format %q", loaded.Logging.Format)
	}

	cfg = loaded
	return nil
}

// app is the set of long-lived components one command invocation shares.
type app struct {
	detectors *detector.Context
	extractor *extract.Extractor
	shutdown  *shutdown.Manager
}

func newApp() *app {
	device, builder := newBackend(cfg, log)
	detectors := detector.NewContext(device, builder, log)

	sm := shutdown.NewManager(log, 5*time.Second)
	sm.Register(detectors)
	sm.Listen()

	return &app{
		detectors: detectors,
		extractor: extract.New(detectors, log, timing.NewTracker()),
		shutdown:  sm,
	}
}

func (a *app) close() {
	a.shutdown.Shutdown()
}

func (a *app) logTimings() {
	timings := a.extractor.Timings()
	for _, op := range timings.Operations() {
		s := timings.Summarize(op)
		log.Debug("gpusift", "timing summary", map[string]interface{}{
			"operation": op,
			"count":     s.Count,
			"total_ms":  s.Total.Milliseconds(),
			"avg_ms":    s.Average.Milliseconds(),
			"max_ms":    s.Max.Milliseconds(),
		})
	}
}
