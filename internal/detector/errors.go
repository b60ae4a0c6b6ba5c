package detector

import "errors"

var (
	// ErrDeviceUnavailable means the compute device could not be acquired, even after one reset.
	ErrDeviceUnavailable = errors.New("compute device unavailable")

	// ErrNotConfigured means the detector was requested before a successful configuration.
	ErrNotConfigured = errors.New("detector not configured")

	ErrConstruction = errors.New("detector construction failed")

	ErrDetection = errors.New("detection failed")

	ErrInvalidImage = errors.New("invalid image")

	// ErrClosed means the context was shut down and builds no more detectors.
	ErrClosed = errors.New("detector context closed")
)
