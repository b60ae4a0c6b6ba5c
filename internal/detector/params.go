package detector

// DefaultMaxExtrema caps candidate extrema when the caller passes a non-positive limit.
const DefaultMaxExtrema = 20000

// Parameters is the detector configuration snapshot. Two snapshots are the
// same configuration only when every field compares equal with ==; floats are
// not compared with a tolerance.
type Parameters struct {
	PeakThreshold        float64
	EdgeThreshold        float64
	UseRootNormalization bool
	Downsampling         float64
	MaxExtrema           int
}

// DefaultParameters mirrors the defaults of the extraction entry point.
func DefaultParameters() Parameters {
	return Parameters{
		PeakThreshold:        0.1,
		EdgeThreshold:        10,
		UseRootNormalization: true,
		Downsampling:         -1,
		MaxExtrema:           DefaultMaxExtrema,
	}
}

// BaselineParameters is the fixed set used for capacity probes.
func BaselineParameters(downsampling float64) Parameters {
	return Parameters{
		PeakThreshold:        0.06,
		EdgeThreshold:        10,
		UseRootNormalization: true,
		Downsampling:         downsampling,
		MaxExtrema:           DefaultMaxExtrema,
	}
}

func NormalizeMaxExtrema(m int) int {
	if m <= 0 {
		return DefaultMaxExtrema
	}
	return m
}

// Normalized returns p with MaxExtrema coerced to a positive cap.
func (p Parameters) Normalized() Parameters {
	p.MaxExtrema = NormalizeMaxExtrema(p.MaxExtrema)
	return p
}

type NormMode int

const (
	NormClassic NormMode = iota
	NormRootSift
)

func (m NormMode) String() string {
	switch m {
	case NormClassic:
		return "classic"
	case NormRootSift:
		return "rootsift"
	default:
		return "unknown"
	}
}

type Sorting int

const (
	// LargestScaleFirst orders features by descending sigma before the extrema cap applies.
	LargestScaleFirst Sorting = iota
	// NoSorting keeps detection order, so the cap drops the last detected features.
	NoSorting
)

// Config is what a backend is built from.
type Config struct {
	Threshold        float64
	EdgeLimit        float64
	NormMode         NormMode
	Sorting          Sorting
	Downsampling     float64
	FilterMaxExtrema int
}

// ConfigFor derives the backend configuration from normalized parameters.
func ConfigFor(p Parameters) Config {
	p = p.Normalized()

	norm := NormClassic
	if p.UseRootNormalization {
		norm = NormRootSift
	}

	return Config{
		Threshold:        p.PeakThreshold,
		EdgeLimit:        p.EdgeThreshold,
		NormMode:         norm,
		Sorting:          LargestScaleFirst,
		Downsampling:     p.Downsampling,
		FilterMaxExtrema: max(1, p.MaxExtrema),
	}
}
