package detector

import (
	"fmt"
	"sync"

	"gpusift/internal/logger"
)

const contextComponent = "DetectorContext"

// Context owns the single detector handle of the process together with the
// parameters it was built from. Every configuration and submission goes
// through one mutex, so concurrent callers queue on it.
//
// The handle and the live parameters are replaced together: when a rebuild
// fails both are cleared, and Detector reports ErrNotConfigured until a later
// Configure succeeds.
type Context struct {
	mu      sync.Mutex
	device  Device
	builder Builder
	log     logger.Logger

	deviceReady bool
	deviceErr   error

	live    Parameters
	hasLive bool
	handle  Detector
	builds  int
	closed  bool
}

// Session exposes the context to code already holding its lock.
type Session struct {
	c *Context
}

// NewContext does not touch the device; it is acquired on first configuration.
// A nil device is treated as always available.
func NewContext(device Device, builder Builder, log logger.Logger) *Context {
	if log == nil {
		log = logger.NewNop()
	}
	return &Context{
		device:  device,
		builder: builder,
		log:     log,
	}
}

// Exclusive runs fn while holding the context lock. Configure, submit and
// await of one attempt belong inside a single call.
func (c *Context) Exclusive(fn func(s *Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&Session{c: c})
}

func (c *Context) Configure(p Parameters) error {
	return c.Exclusive(func(s *Session) error {
		return s.Configure(p)
	})
}

func (c *Context) Detector() (Detector, error) {
	var d Detector
	err := c.Exclusive(func(s *Session) error {
		var err error
		d, err = s.Detector()
		return err
	})
	return d, err
}

// FitsAllocation configures the context with BaselineParameters and asks the
// live detector whether an image of the given size would fit. Sizes that are
// too large or unsupported report false without an error.
func (c *Context) FitsAllocation(width, height int, downsampling float64) (bool, error) {
	var fits bool
	err := c.Exclusive(func(s *Session) error {
		if err := s.Configure(BaselineParameters(downsampling)); err != nil {
			return err
		}
		d, err := s.Detector()
		if err != nil {
			return err
		}

		alloc := d.CheckAllocation(width, height)
		fits = alloc == AllocationFits
		c.log.Debug(contextComponent, "allocation probe", map[string]interface{}{
			"width":        width,
			"height":       height,
			"downsampling": downsampling,
			"result":       alloc.String(),
		})
		return nil
	})
	return fits, err
}

// Live returns the parameters the current handle was built from.
func (c *Context) Live() (Parameters, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, c.hasLive
}

// Builds counts successful detector constructions.
func (c *Context) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Close releases the live handle. The context can be configured again afterwards.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked()
}

// Shutdown releases the handle for good: later configurations fail with
// ErrClosed, so extraction loops still running end instead of rebuilding.
func (c *Context) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if err := c.releaseLocked(); err != nil {
		c.log.Error(contextComponent, err, map[string]interface{}{"stage": "shutdown"})
	}
}

// Configure rebuilds the detector iff the normalized parameters differ from
// the live ones or no handle exists.
func (s *Session) Configure(p Parameters) error {
	c := s.c
	p = p.Normalized()

	if c.closed {
		return ErrClosed
	}
	if err := c.acquireDeviceLocked(); err != nil {
		return err
	}

	if c.handle != nil && c.hasLive && c.live == p {
		return nil
	}

	if err := c.releaseLocked(); err != nil {
		c.log.Warning(contextComponent, "closing previous detector failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	handle, err := c.builder.Build(ConfigFor(p))
	if err == nil && handle == nil {
		err = fmt.Errorf("builder returned no detector")
	}
	if err != nil {
		c.log.Error(contextComponent, err, map[string]interface{}{
			"peak_threshold": p.PeakThreshold,
			"edge_threshold": p.EdgeThreshold,
			"downsampling":   p.Downsampling,
			"max_extrema":    p.MaxExtrema,
		})
		return fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	c.handle = handle
	c.live = p
	c.hasLive = true
	c.builds++

	c.log.Debug(contextComponent, "detector rebuilt", map[string]interface{}{
		"peak_threshold": p.PeakThreshold,
		"edge_threshold": p.EdgeThreshold,
		"root_norm":      p.UseRootNormalization,
		"downsampling":   p.Downsampling,
		"max_extrema":    p.MaxExtrema,
		"builds":         c.builds,
	})
	return nil
}

func (s *Session) Detector() (Detector, error) {
	if s.c.handle == nil {
		return nil, ErrNotConfigured
	}
	return s.c.handle, nil
}

// acquireDeviceLocked probes the device once; a failure gets one reset before
// it becomes permanent for this context.
func (c *Context) acquireDeviceLocked() error {
	if c.deviceReady {
		return nil
	}
	if c.deviceErr != nil {
		return c.deviceErr
	}
	if c.device == nil {
		c.deviceReady = true
		return nil
	}

	err := c.device.Acquire()
	if err != nil {
		c.log.Warning(contextComponent, "device acquisition failed, resetting", map[string]interface{}{
			"error": err.Error(),
		})
		if resetErr := c.device.Reset(); resetErr != nil {
			c.log.Warning(contextComponent, "device reset failed", map[string]interface{}{
				"error": resetErr.Error(),
			})
		}
		err = c.device.Acquire()
	}
	if err != nil {
		c.deviceErr = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		c.log.Error(contextComponent, c.deviceErr, nil)
		return c.deviceErr
	}

	c.deviceReady = true
	return nil
}

func (c *Context) releaseLocked() error {
	handle := c.handle
	c.handle = nil
	c.hasLive = false
	c.live = Parameters{}

	if handle == nil {
		return nil
	}
	return handle.Close()
}
