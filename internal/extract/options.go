package extract

import (
	"errors"
	"math"

	"gpusift/internal/detector"
)

const (
	// DecayFactor scales the peak threshold between attempts that came up short.
	DecayFactor = 2.0 / 3.0

	// ThresholdFloor ends the search: a result produced below it is accepted
	// regardless of its size.
	ThresholdFloor = 0.0001
)

var ErrInvalidOptions = errors.New("invalid extraction options")

type Options struct {
	PeakThreshold        float64
	EdgeThreshold        float64
	TargetFeatureCount   int
	UseRootNormalization bool
	Downsampling         float64
	MaxExtrema           int
}

func DefaultOptions() Options {
	return Options{
		PeakThreshold:        0.1,
		EdgeThreshold:        10,
		TargetFeatureCount:   4000,
		UseRootNormalization: true,
		Downsampling:         -1,
		MaxExtrema:           detector.DefaultMaxExtrema,
	}
}

func (o Options) parameters(peak float64) detector.Parameters {
	return detector.Parameters{
		PeakThreshold:        peak,
		EdgeThreshold:        o.EdgeThreshold,
		UseRootNormalization: o.UseRootNormalization,
		Downsampling:         o.Downsampling,
		MaxExtrema:           detector.NormalizeMaxExtrema(o.MaxExtrema),
	}
}

// EffectiveTarget never asks for more features than the detector may surface.
func EffectiveTarget(target, maxExtrema int) int {
	return min(target, detector.NormalizeMaxExtrema(maxExtrema))
}

func Decay(peak float64) float64 {
	return peak * 2 / 3
}

// DecaySteps is the number of decays applied to peak before it drops below
// ThresholdFloor, which bounds the attempts of one extraction at DecaySteps+1.
func DecaySteps(peak float64) int {
	if math.IsNaN(peak) || math.IsInf(peak, 0) {
		return 0
	}
	n := 0
	for peak >= ThresholdFloor {
		peak = Decay(peak)
		n++
	}
	return n
}
