package sift

import (
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/mem"
	"gocv.io/x/gocv"

	"gpusift/internal/detector"
	"gpusift/internal/logger"
)

const component = "OpenCVSIFT"

type Options struct {
	// OctaveLayers is the number of scale layers per octave.
	OctaveLayers int
	// Sigma of the Gaussian applied to the base image.
	Sigma float64
	// MemoryBudget in bytes for allocation probes; zero means available system memory.
	MemoryBudget uint64
}

func DefaultOptions() Options {
	return Options{
		OctaveLayers: 3,
		Sigma:        1.6,
	}
}

// Builder constructs OpenCV SIFT detectors; it implements detector.Builder.
type Builder struct {
	opts      Options
	log       logger.Logger
	available func() (uint64, error)
}

func NewBuilder(opts Options, log logger.Logger) *Builder {
	if opts.OctaveLayers <= 0 {
		opts.OctaveLayers = DefaultOptions().OctaveLayers
	}
	if opts.Sigma <= 0 {
		opts.Sigma = DefaultOptions().Sigma
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Builder{opts: opts, log: log, available: availableMemory}
}

func (b *Builder) Build(cfg detector.Config) (detector.Detector, error) {
	if math.IsNaN(cfg.Downsampling) || math.IsInf(cfg.Downsampling, 0) {
		return nil, fmt.Errorf("unsupported downsampling %v", cfg.Downsampling)
	}
	if cfg.Threshold < 0 || cfg.EdgeLimit <= 0 {
		return nil, fmt.Errorf("invalid thresholds peak=%v edge=%v", cfg.Threshold, cfg.EdgeLimit)
	}

	nfeatures, layers := cfg.FilterMaxExtrema, b.opts.OctaveLayers
	threshold, edge, sigma := cfg.Threshold, cfg.EdgeLimit, b.opts.Sigma
	s := gocv.NewSIFTWithParams(&nfeatures, &layers, &threshold, &edge, &sigma)

	b.log.Debug(component, "detector created", map[string]interface{}{
		"max_extrema":   cfg.FilterMaxExtrema,
		"threshold":     cfg.Threshold,
		"edge_limit":    cfg.EdgeLimit,
		"norm":          cfg.NormMode.String(),
		"downsampling":  cfg.Downsampling,
		"octave_layers": b.opts.OctaveLayers,
	})

	return &Detector{
		cfg:    cfg,
		opts:   b.opts,
		sift:   s,
		log:    b.log,
		budget: b.budget,
		scale:  inputScale(cfg.Downsampling),
	}, nil
}

func (b *Builder) budget() (uint64, error) {
	if b.opts.MemoryBudget > 0 {
		return b.opts.MemoryBudget, nil
	}
	return b.available()
}

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("failed to read system memory: %w", err)
	}
	return vm.Available, nil
}
