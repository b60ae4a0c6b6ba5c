package timing

import (
	"context"
	"sync"
	"time"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Summary aggregates the recorded durations of one operation.
type Summary struct {
	Count   int
	Total   time.Duration
	Average time.Duration
	Max     time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	enabled bool
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		enabled: true,
	}
}

// StartTiming returns a context carrying the start time of operation.
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !tt.isEnabled() {
		return ctx
	}

	return context.WithValue(ctx, timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

// EndTiming records the elapsed time for the operation started on ctx and
// returns it. Contexts without a start mark record nothing.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	if !tt.isEnabled() {
		return 0
	}

	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return 0
	}

	duration := time.Since(timingInfo.StartTime)

	tt.mu.Lock()
	tt.timings[timingInfo.Operation] = append(tt.timings[timingInfo.Operation], duration)
	tt.mu.Unlock()

	return duration
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	return tt.Summarize(operation).Average
}

func (tt *Tracker) Summarize(operation string) Summary {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return Summary{}
	}

	s := Summary{Count: len(timings)}
	for _, d := range timings {
		s.Total += d
		if d > s.Max {
			s.Max = d
		}
	}
	s.Average = s.Total / time.Duration(len(timings))
	return s
}

// Operations lists every operation with at least one recorded timing.
func (tt *Tracker) Operations() []string {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	ops := make([]string, 0, len(tt.timings))
	for op := range tt.timings {
		ops = append(ops, op)
	}
	return ops
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}

func (tt *Tracker) isEnabled() bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.enabled
}
