// Package detectortest provides a deterministic in-memory detector for tests.
package detectortest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gpusift/internal/detector"
)

// RespondFunc produces the result of one detection for the given build config.
type RespondFunc func(cfg detector.Config, width, height int) (*detector.FeatureSet, error)

type Builder struct {
	Respond  RespondFunc
	Alloc    func(width, height int) detector.Allocation
	BuildErr error
	// Delay is slept inside Await to widen race windows in concurrency tests.
	Delay time.Duration

	mu          sync.Mutex
	configs     []detector.Config
	submissions int
	closed      int

	active        int32
	maxConcurrent int32
}

func (b *Builder) Build(cfg detector.Config) (detector.Detector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.BuildErr != nil {
		return nil, b.BuildErr
	}
	b.configs = append(b.configs, cfg)
	return &Detector{b: b, cfg: cfg}, nil
}

// Configs returns every config a detector was successfully built from.
func (b *Builder) Configs() []detector.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]detector.Config, len(b.configs))
	copy(out, b.configs)
	return out
}

func (b *Builder) Submissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submissions
}

func (b *Builder) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// MaxConcurrent is the highest number of jobs observed awaiting at once.
func (b *Builder) MaxConcurrent() int {
	return int(atomic.LoadInt32(&b.maxConcurrent))
}

type Detector struct {
	b      *Builder
	cfg    detector.Config
	closed bool
}

func (d *Detector) Submit(width, height int, pix []byte) (detector.Job, error) {
	if d.closed {
		return nil, errors.New("detector closed")
	}
	d.b.mu.Lock()
	d.b.submissions++
	d.b.mu.Unlock()
	return &job{d: d, width: width, height: height}, nil
}

func (d *Detector) CheckAllocation(width, height int) detector.Allocation {
	if d.b.Alloc == nil {
		return detector.AllocationFits
	}
	return d.b.Alloc(width, height)
}

func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.b.mu.Lock()
	d.b.closed++
	d.b.mu.Unlock()
	return nil
}

type job struct {
	d      *Detector
	width  int
	height int
}

func (j *job) Await() (*detector.FeatureSet, error) {
	b := j.d.b
	n := atomic.AddInt32(&b.active, 1)
	defer atomic.AddInt32(&b.active, -1)
	for {
		seen := atomic.LoadInt32(&b.maxConcurrent)
		if n <= seen || atomic.CompareAndSwapInt32(&b.maxConcurrent, seen, n) {
			break
		}
	}

	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}
	if b.Respond == nil {
		return &detector.FeatureSet{}, nil
	}
	return b.Respond(j.d.cfg, j.width, j.height)
}

type Device struct {
	// Failures is how many Acquire calls fail before one succeeds.
	Failures int

	Acquires int
	Resets   int
}

func (d *Device) Acquire() error {
	d.Acquires++
	if d.Failures > 0 {
		d.Failures--
		return errors.New("no device")
	}
	return nil
}

func (d *Device) Reset() error {
	d.Resets++
	return nil
}

// Feature builds a keypoint with one orientation per angle.
func Feature(x, y, sigma float32, angles ...float32) detector.Feature {
	f := detector.Feature{X: x, Y: y, Sigma: sigma}
	for i, a := range angles {
		var desc detector.Descriptor
		for k := range desc {
			desc[k] = float32(i + 1)
		}
		f.Orientations = append(f.Orientations, detector.Orientation{Angle: a, Descriptor: desc})
	}
	return f
}

// Features returns n single-orientation keypoints spread along the diagonal.
func Features(n int) *detector.FeatureSet {
	fs := &detector.FeatureSet{Features: make([]detector.Feature, 0, n)}
	for i := 0; i < n; i++ {
		fs.Features = append(fs.Features, Feature(float32(i), float32(i), 1.6, 0))
	}
	return fs
}
