package sift

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"gpusift/internal/detector"
	"gpusift/internal/logger"
	"gpusift/internal/opencv/safe"
)

// Detector runs OpenCV SIFT on 8-bit gray images. It is not safe for
// concurrent use.
type Detector struct {
	cfg    detector.Config
	opts   Options
	sift   gocv.SIFT
	log    logger.Logger
	budget func() (uint64, error)
	scale  float64
	closed bool
}

type job struct {
	done chan struct{}
	fs   *detector.FeatureSet
	err  error
}

func (j *job) Await() (*detector.FeatureSet, error) {
	<-j.done
	return j.fs, j.err
}

// Submit starts detection on a goroutine. pix must stay unchanged until
// Await returns.
func (d *Detector) Submit(width, height int, pix []byte) (detector.Job, error) {
	if d.closed {
		return nil, fmt.Errorf("detector closed")
	}

	src, err := safe.NewGrayMatFromBytes(width, height, pix, "sift_input")
	if err != nil {
		return nil, err
	}

	j := &job{done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer src.Close()
		j.fs, j.err = d.detect(src, width, height)
	}()
	return j, nil
}

func (d *Detector) CheckAllocation(width, height int) detector.Allocation {
	if err := safe.ValidateDimensions(width, height, "allocation probe"); err != nil {
		return detector.AllocationUnsupported
	}

	need := EstimateBytes(width, height, d.cfg.Downsampling, d.opts.OctaveLayers)
	have, err := d.budget()
	if err != nil {
		d.log.Warning(component, "memory budget unknown", map[string]interface{}{
			"error": err.Error(),
		})
		return detector.AllocationTooLarge
	}
	if need > have {
		return detector.AllocationTooLarge
	}
	return detector.AllocationFits
}

func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sift.Close()
}

func (d *Detector) detect(src *safe.Mat, width, height int) (*detector.FeatureSet, error) {
	if err := safe.ValidateMatForOperation(src, "sift detect"); err != nil {
		return nil, err
	}

	input := src.GetMat()
	if d.scale != 1 {
		resized, err := resize(input, scaledSize(width, height, d.scale), d.scale)
		if err != nil {
			return nil, err
		}
		defer resized.Close()
		input = resized.GetMat()
	}

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := d.sift.DetectAndCompute(input, mask)
	defer desc.Close()

	if len(kps) > 0 && (desc.Rows() != len(kps) || desc.Cols() != detector.DescriptorLen) {
		return nil, fmt.Errorf("descriptor matrix %dx%d does not match %d keypoints",
			desc.Rows(), desc.Cols(), len(kps))
	}

	features := groupKeypoints(kps, func(row int, out *detector.Descriptor) {
		for k := range out {
			out[k] = desc.GetFloatAt(row, k)
		}
	}, d.scale, d.cfg)

	return &detector.FeatureSet{Features: features}, nil
}

// resize scales src to size; area interpolation when shrinking.
func resize(src gocv.Mat, size image.Point, scale float64) (*safe.Mat, error) {
	interp := gocv.InterpolationArea
	if scale > 1 {
		interp = gocv.InterpolationLinear
	}

	raw := gocv.NewMat()
	if err := gocv.Resize(src, &raw, size, 0, 0, interp); err != nil {
		raw.Close()
		return nil, fmt.Errorf("resize to %dx%d failed: %w", size.X, size.Y, err)
	}
	resized, err := safe.Own(raw, "sift_resized")
	if err != nil {
		return nil, fmt.Errorf("resize to %dx%d failed: %w", size.X, size.Y, err)
	}
	return resized, nil
}

func scaledSize(width, height int, scale float64) image.Point {
	return image.Pt(
		max(1, int(float64(width)*scale+0.5)),
		max(1, int(float64(height)*scale+0.5)),
	)
}
