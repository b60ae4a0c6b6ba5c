//go:build cuda

package sift

import (
	"fmt"

	"gocv.io/x/gocv/cuda"
)

// Device selects a CUDA device for the OpenCV runtime.
type Device struct {
	ID int
}

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Acquire() error {
	count := cuda.GetCudaEnabledDeviceCount()
	if count <= 0 {
		return fmt.Errorf("no CUDA capable device")
	}
	if d.ID >= count {
		return fmt.Errorf("CUDA device %d out of range, %d available", d.ID, count)
	}

	cuda.SetDevice(d.ID)
	if current := cuda.GetDevice(); current != d.ID {
		return fmt.Errorf("CUDA device %d selected, %d active", d.ID, current)
	}
	return nil
}

func (d *Device) Reset() error {
	cuda.ResetDevice()
	return nil
}
