package extract_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gpusift/internal/detector"
	"gpusift/internal/detector/detectortest"
	"gpusift/internal/extract"
)

func grayImage(w, h int) detector.Image {
	return detector.Image{Width: w, Height: h, Pix: make([]byte, w*h)}
}

func newExtractor(b *detectortest.Builder) (*extract.Extractor, *detector.Context) {
	ctx := detector.NewContext(nil, b, nil)
	return extract.New(ctx, nil, nil), ctx
}

func TestExtractOneDecayStep(t *testing.T) {
	var thresholds []float64
	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		thresholds = append(thresholds, cfg.Threshold)
		if cfg.Threshold >= 0.09 {
			return detectortest.Features(3), nil
		}
		return detectortest.Features(15), nil
	}}
	ex, ctx := newExtractor(b)

	opts := extract.DefaultOptions()
	opts.TargetFeatureCount = 10
	res, err := ex.Extract(grayImage(100, 100), opts)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, thresholds, 2)
	assert.Equal(t, 0.1, thresholds[0])
	assert.InDelta(t, 0.0667, thresholds[1], 1e-4)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, thresholds[1], res.PeakThreshold)
	assert.Equal(t, 15, res.Points.Rows)
	assert.Equal(t, 15, res.Descriptors.Rows)
	assert.Equal(t, 2, ctx.Builds(), "each threshold change rebuilds the detector")
	assert.Len(t, ex.Timings().GetTimings(extract.AttemptOperation), 2)
}

func TestExtractEmptyImageSkipsDetector(t *testing.T) {
	b := &detectortest.Builder{}
	ex, ctx := newExtractor(b)

	for _, img := range []detector.Image{{}, {Width: 10, Height: 0}, {Width: 0, Height: 7}} {
		res, err := ex.Extract(img, extract.DefaultOptions())
		assert.NoError(t, err)
		assert.Nil(t, res)
	}
	assert.Zero(t, b.Submissions())
	assert.Zero(t, ctx.Builds())
}

func TestExtractRejectsMismatchedBuffer(t *testing.T) {
	b := &detectortest.Builder{}
	ex, _ := newExtractor(b)

	_, err := ex.Extract(detector.Image{Width: 10, Height: 10, Pix: make([]byte, 99)}, extract.DefaultOptions())
	assert.ErrorIs(t, err, detector.ErrInvalidImage)

	res, err := ex.Extract(detector.Image{Width: 10, Height: 10}, extract.DefaultOptions())
	assert.ErrorIs(t, err, detector.ErrInvalidImage)
	assert.Nil(t, res)
	assert.Zero(t, b.Submissions())
}

func TestExtractRejectsNonFiniteThreshold(t *testing.T) {
	ex, _ := newExtractor(&detectortest.Builder{})

	for _, peak := range []float64{math.NaN(), math.Inf(1)} {
		opts := extract.DefaultOptions()
		opts.PeakThreshold = peak
		_, err := ex.Extract(grayImage(8, 8), opts)
		assert.ErrorIs(t, err, extract.ErrInvalidOptions)
	}
}

func TestExtractStopsAtThresholdFloor(t *testing.T) {
	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		return detectortest.Features(1), nil
	}}
	ex, _ := newExtractor(b)

	res, err := ex.Extract(grayImage(32, 32), extract.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Less(t, res.PeakThreshold, extract.ThresholdFloor)
	assert.Equal(t, extract.DecaySteps(0.1)+1, res.Attempts)
	assert.Equal(t, res.Attempts, b.Submissions())
	assert.Equal(t, 1, res.Points.Rows, "fewer features than requested is not an error")
}

func TestExtractBelowFloorRunsOnce(t *testing.T) {
	b := &detectortest.Builder{}
	ex, _ := newExtractor(b)

	opts := extract.DefaultOptions()
	opts.PeakThreshold = 0.00005
	res, err := ex.Extract(grayImage(16, 16), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.Points.Rows)
	assert.Equal(t, 1, b.Submissions())
}

func TestExtractTargetCappedByMaxExtrema(t *testing.T) {
	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		return detectortest.Features(cfg.FilterMaxExtrema), nil
	}}
	ex, _ := newExtractor(b)

	opts := extract.DefaultOptions()
	opts.MaxExtrema = 12
	res, err := ex.Extract(grayImage(64, 64), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 12, res.Features)

	cfgs := b.Configs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, 12, cfgs[0].FilterMaxExtrema)
}

func TestExtractPropagatesDetectionFailure(t *testing.T) {
	boom := errors.New("kernel launch failed")
	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		return nil, boom
	}}
	ex, _ := newExtractor(b)

	res, err := ex.Extract(grayImage(20, 20), extract.DefaultOptions())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, detector.ErrDetection)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, b.Submissions(), "failures are not retried")
}

func TestExtractPropagatesConstructionFailure(t *testing.T) {
	b := &detectortest.Builder{BuildErr: errors.New("no memory")}
	ex, _ := newExtractor(b)

	res, err := ex.Extract(grayImage(20, 20), extract.DefaultOptions())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, detector.ErrConstruction)
	assert.Zero(t, b.Submissions())
}

func TestExtractAfterShutdown(t *testing.T) {
	b := &detectortest.Builder{}
	ex, ctx := newExtractor(b)
	ctx.Shutdown()

	res, err := ex.Extract(grayImage(20, 20), extract.DefaultOptions())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, detector.ErrClosed)
	assert.Zero(t, ctx.Builds())
	assert.Zero(t, b.Submissions())
}

func TestShutdownEndsRunningExtraction(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		ctx  *detector.Context
		once sync.Once
		done = make(chan struct{})
	)
	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		once.Do(func() {
			go func() {
				defer close(done)
				ctx.Shutdown()
			}()
			// Let Shutdown queue on the context lock.
			time.Sleep(20 * time.Millisecond)
		})
		return detectortest.Features(1), nil
	}}
	var ex *extract.Extractor
	ex, ctx = newExtractor(b)

	res, err := ex.Extract(grayImage(20, 20), extract.DefaultOptions())
	<-done
	assert.Nil(t, res)
	assert.ErrorIs(t, err, detector.ErrClosed)
	assert.Equal(t, b.Closed(), len(b.Configs()), "every built detector is released")
	assert.Less(t, b.Submissions(), extract.DecaySteps(0.1)+1)
}

func TestExtractPropagatesDeviceUnavailable(t *testing.T) {
	ctx := detector.NewContext(&detectortest.Device{Failures: 2}, &detectortest.Builder{}, nil)
	ex := extract.New(ctx, nil, nil)

	_, err := ex.Extract(grayImage(20, 20), extract.DefaultOptions())
	assert.ErrorIs(t, err, detector.ErrDeviceUnavailable)
}

func TestExtractRowsAlignWithOrientations(t *testing.T) {
	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		return &detector.FeatureSet{Features: []detector.Feature{
			detectortest.Feature(10.4, 20.6, 2.0, 0.5),
			detectortest.Feature(30, 40, 3.5, 1.0, 2.0, 3.0),
		}}, nil
	}}
	ex, _ := newExtractor(b)

	opts := extract.DefaultOptions()
	opts.TargetFeatureCount = 2
	res, err := ex.Extract(grayImage(50, 50), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Features)
	require.Equal(t, 4, res.Points.Rows)
	require.Equal(t, 4, res.Descriptors.Rows)
	assert.Equal(t, 4, res.Points.Cols)
	assert.Equal(t, detector.DescriptorLen, res.Descriptors.Cols)

	assert.Equal(t, []float32{10, 21, 2.0, 0.5}, res.Points.Row(0))
	assert.Equal(t, []float32{30, 40, 3.5, 1.0}, res.Points.Row(1))
	assert.Equal(t, []float32{30, 40, 3.5, 3.0}, res.Points.Row(3))

	assert.Equal(t, float32(1), res.Descriptors.Row(0)[0])
	assert.Equal(t, float32(1), res.Descriptors.Row(1)[127])
	assert.Equal(t, float32(3), res.Descriptors.Row(3)[64])
}

func TestExtractConcurrentCallersShareOneDetector(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &detectortest.Builder{Respond: func(cfg detector.Config, w, h int) (*detector.FeatureSet, error) {
		if cfg.Threshold > 0.05 {
			return detectortest.Features(2), nil
		}
		return detectortest.Features(20), nil
	}}
	ex, _ := newExtractor(b)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opts := extract.DefaultOptions()
			opts.TargetFeatureCount = 10
			res, err := ex.Extract(grayImage(40, 40), opts)
			if assert.NoError(t, err) {
				assert.Equal(t, 20, res.Points.Rows)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, b.MaxConcurrent())
}

func TestCheckFit(t *testing.T) {
	b := &detectortest.Builder{Alloc: func(w, h int) detector.Allocation {
		if w*h > 1<<22 {
			return detector.AllocationTooLarge
		}
		return detector.AllocationFits
	}}
	ex, _ := newExtractor(b)

	fits, err := ex.CheckFit(4096, 4096, -1)
	require.NoError(t, err)
	assert.False(t, fits)

	fits, err = ex.CheckFit(640, 480, -1)
	require.NoError(t, err)
	assert.True(t, fits)
}
