package detector

import (
	"fmt"
	"math"
)

const DescriptorLen = 128

// Image is a single-channel 8-bit pixel matrix in row-major order.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// Empty reports an image with no pixels. A sized image without a buffer is
// not empty; Validate rejects it.
func (img Image) Empty() bool {
	return img.Width == 0 || img.Height == 0
}

func (img Image) Validate() error {
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidImage, img.Width, img.Height)
	}
	if len(img.Pix) != img.Width*img.Height {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidImage, len(img.Pix), img.Width, img.Height)
	}
	return nil
}

type Descriptor [DescriptorLen]float32

// Normalize rescales d in place: unit L2 norm for NormClassic, square root of
// the L1-normalized magnitudes for NormRootSift.
func (d *Descriptor) Normalize(mode NormMode) {
	switch mode {
	case NormRootSift:
		var sum float64
		for _, v := range d {
			sum += math.Abs(float64(v))
		}
		if sum == 0 {
			return
		}
		for i, v := range d {
			d[i] = float32(math.Sqrt(math.Abs(float64(v)) / sum))
		}
	default:
		var sq float64
		for _, v := range d {
			sq += float64(v) * float64(v)
		}
		if sq == 0 {
			return
		}
		norm := math.Sqrt(sq)
		for i, v := range d {
			d[i] = float32(float64(v) / norm)
		}
	}
}

// Orientation is one dominant direction of a keypoint (radians) and its descriptor.
type Orientation struct {
	Angle      float32
	Descriptor Descriptor
}

// Feature is a keypoint location; the detector may emit several oriented copies.
type Feature struct {
	X            float32
	Y            float32
	Sigma        float32
	Orientations []Orientation
}

type FeatureSet struct {
	Features []Feature
}

// Count is the number of keypoint locations.
func (fs *FeatureSet) Count() int {
	if fs == nil {
		return 0
	}
	return len(fs.Features)
}

// Rows is the number of (keypoint, orientation) pairs.
func (fs *FeatureSet) Rows() int {
	if fs == nil {
		return 0
	}
	n := 0
	for _, f := range fs.Features {
		n += len(f.Orientations)
	}
	return n
}
