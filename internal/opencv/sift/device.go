//go:build !cuda

package sift

import (
	"errors"

	"gocv.io/x/gocv"
)

// Device is the CPU OpenCV runtime. Build with -tags cuda to probe a CUDA device instead.
type Device struct{}

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Acquire() error {
	if gocv.OpenCVVersion() == "" {
		return errors.New("OpenCV runtime not available")
	}
	return nil
}

func (d *Device) Reset() error {
	return nil
}
