package safe

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Mat owns a gocv.Mat and makes Close idempotent. A finalizer releases the
// native memory if Close is never called.
type Mat struct {
	mat     gocv.Mat
	isValid int32
	mu      sync.RWMutex
	id      uint64
	tag     string
}

var nextMatID uint64

// NewGrayMatFromBytes wraps a row-major 8-bit single channel buffer.
func NewGrayMatFromBytes(width, height int, pix []byte, tag string) (*Mat, error) {
	if err := ValidateDimensions(width, height, tag); err != nil {
		return nil, err
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("buffer holds %d bytes, %dx%d needs %d", len(pix), width, height, width*height)
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat with size %dx%d: %w", width, height, err)
	}
	return Own(mat, tag)
}

// Own takes ownership of mat; the caller must not close it afterwards.
func Own(mat gocv.Mat, tag string) (*Mat, error) {
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("Mat is empty for operation: %s", tag)
	}

	safeMat := &Mat{
		mat:     mat,
		isValid: 1,
		id:      atomic.AddUint64(&nextMatID, 1),
		tag:     tag,
	}
	mats.add(safeMat.id, int64(mat.Total()*mat.ElemSize()), tag)
	runtime.SetFinalizer(safeMat, (*Mat).finalize)
	return safeMat, nil
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}
	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Cols()
}

// GetMat exposes the underlying Mat; it stays owned by sm.
func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.mat
}

func (sm *Mat) ID() uint64 {
	return sm.id
}

func (sm *Mat) Tag() string {
	return sm.tag
}

func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		sm.mat.Close()
		mats.remove(sm.id)
		runtime.SetFinalizer(sm, nil)
	}
}

func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}
