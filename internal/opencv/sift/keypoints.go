package sift

import (
	"math"
	"slices"

	"gocv.io/x/gocv"

	"gpusift/internal/detector"
)

// inputScale is the resize applied before OpenCV, which already doubles the
// image internally; that doubling corresponds to a downsampling of -1.
func inputScale(downsampling float64) float64 {
	return math.Pow(2, -(downsampling + 1))
}

type keypointKey struct {
	x, y, size float64
}

// groupKeypoints merges keypoints that share position and size into one
// feature with several orientations and maps them back to input pixels.
func groupKeypoints(kps []gocv.KeyPoint, descriptor func(row int, out *detector.Descriptor), scale float64, cfg detector.Config) []detector.Feature {
	features := make([]detector.Feature, 0, len(kps))
	index := make(map[keypointKey]int, len(kps))

	for row, kp := range kps {
		var o detector.Orientation
		o.Angle = float32(kp.Angle * math.Pi / 180)
		descriptor(row, &o.Descriptor)
		o.Descriptor.Normalize(cfg.NormMode)

		key := keypointKey{kp.X, kp.Y, kp.Size}
		if i, ok := index[key]; ok {
			features[i].Orientations = append(features[i].Orientations, o)
			continue
		}

		index[key] = len(features)
		features = append(features, detector.Feature{
			X:            float32(kp.X / scale),
			Y:            float32(kp.Y / scale),
			Sigma:        float32(kp.Size / 2 / scale),
			Orientations: []detector.Orientation{o},
		})
	}

	if cfg.Sorting == detector.LargestScaleFirst {
		slices.SortStableFunc(features, func(a, b detector.Feature) int {
			switch {
			case a.Sigma > b.Sigma:
				return -1
			case a.Sigma < b.Sigma:
				return 1
			default:
				return 0
			}
		})
	}

	if cfg.FilterMaxExtrema > 0 && len(features) > cfg.FilterMaxExtrema {
		features = features[:cfg.FilterMaxExtrema]
	}
	return features
}

// EstimateBytes approximates the scale-space memory for one image: float
// Gaussian and DoG layers over a geometric series of octaves, plus the input.
func EstimateBytes(width, height int, downsampling float64, octaveLayers int) uint64 {
	f := math.Pow(2, -downsampling)
	base := float64(width) * f * float64(height) * f
	layers := float64(2*octaveLayers + 5)
	total := base*4*layers*4/3 + float64(width*height)
	if total >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(total)
}
