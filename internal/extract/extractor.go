package extract

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gpusift/internal/detector"
	"gpusift/internal/logger"
	"gpusift/internal/timing"
)

const (
	component = "AdaptiveExtractor"

	// AttemptOperation names the timing series of configure+detect attempts.
	AttemptOperation = "detect_attempt"
)

// Extractor searches for a peak threshold that yields enough features. It
// keeps no state between calls; everything shared lives in the Context.
type Extractor struct {
	ctx     *detector.Context
	log     logger.Logger
	timings *timing.Tracker
}

func New(ctx *detector.Context, log logger.Logger, timings *timing.Tracker) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	if timings == nil {
		timings = timing.NewTracker()
	}
	return &Extractor{ctx: ctx, log: log, timings: timings}
}

func (e *Extractor) Timings() *timing.Tracker {
	return e.timings
}

// Extract runs detection on img, lowering the peak threshold by DecayFactor
// until at least EffectiveTarget features come back or the threshold falls
// below ThresholdFloor. An empty image yields (nil, nil) without touching the
// detector. Detector failures end the search immediately.
func (e *Extractor) Extract(img detector.Image, opts Options) (*Result, error) {
	if img.Empty() {
		e.log.Debug(component, "empty image, nothing to extract", nil)
		return nil, nil
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(opts.PeakThreshold) || math.IsInf(opts.PeakThreshold, 0) {
		return nil, fmt.Errorf("%w: peak threshold %v", ErrInvalidOptions, opts.PeakThreshold)
	}

	target := EffectiveTarget(opts.TargetFeatureCount, opts.MaxExtrema)
	peak := opts.PeakThreshold

	for attempt := 1; ; attempt++ {
		fs, err := e.attempt(img, opts.parameters(peak))
		if err != nil {
			return nil, err
		}

		n := fs.Count()
		if n >= target || peak < ThresholdFloor {
			res := Format(fs, img.Width, img.Height)
			res.Attempts = attempt
			res.PeakThreshold = peak

			fields := map[string]interface{}{
				"width":          img.Width,
				"height":         img.Height,
				"features":       n,
				"rows":           res.Points.Rows,
				"target":         target,
				"attempts":       attempt,
				"peak_threshold": peak,
			}
			if n < target {
				e.log.Warning(component, "threshold floor reached below target", fields)
			} else {
				e.log.Debug(component, "extraction accepted", fields)
			}
			return res, nil
		}

		next := Decay(peak)
		e.log.Debug(component, "too few features, lowering threshold", map[string]interface{}{
			"attempt":        attempt,
			"features":       n,
			"target":         target,
			"peak_threshold": peak,
			"next_threshold": next,
		})
		peak = next
	}
}

// CheckFit reports whether an image of the given size fits the detector's memory.
func (e *Extractor) CheckFit(width, height int, downsampling float64) (bool, error) {
	return e.ctx.FitsAllocation(width, height, downsampling)
}

// attempt holds the context lock across configure, submit and await.
func (e *Extractor) attempt(img detector.Image, p detector.Parameters) (*detector.FeatureSet, error) {
	var fs *detector.FeatureSet
	err := e.ctx.Exclusive(func(s *detector.Session) error {
		span := e.timings.StartTiming(context.Background(), AttemptOperation)
		defer e.timings.EndTiming(span)

		if err := s.Configure(p); err != nil {
			return err
		}
		d, err := s.Detector()
		if err != nil {
			return err
		}

		job, err := d.Submit(img.Width, img.Height, img.Pix)
		if err != nil {
			return detectionError("submit", err)
		}
		fs, err = job.Await()
		if err != nil {
			return detectionError("await", err)
		}
		if fs == nil {
			fs = &detector.FeatureSet{}
		}
		return nil
	})
	return fs, err
}

func detectionError(stage string, err error) error {
	if errors.Is(err, detector.ErrDetection) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", detector.ErrDetection, stage, err)
}
