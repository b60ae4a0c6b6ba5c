package detector

// Builder constructs detector handles. Construction is expensive and is only
// requested when the live configuration changes.
type Builder interface {
	Build(cfg Config) (Detector, error)
}

// Detector is a live handle. It is not safe for concurrent use; Context
// serializes every call.
type Detector interface {
	Submit(width, height int, pix []byte) (Job, error)
	CheckAllocation(width, height int) Allocation
	Close() error
}

// Job is a submitted detection; Await blocks until the result is ready.
type Job interface {
	Await() (*FeatureSet, error)
}

// Device is the compute device the detector runs on.
type Device interface {
	Acquire() error
	Reset() error
}

type Allocation int

const (
	AllocationFits Allocation = iota
	AllocationTooLarge
	AllocationUnsupported
)

func (a Allocation) String() string {
	switch a {
	case AllocationFits:
		return "fits"
	case AllocationTooLarge:
		return "too_large"
	case AllocationUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}
