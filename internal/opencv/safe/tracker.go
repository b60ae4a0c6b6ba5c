package safe

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats describes native Mat memory owned through this package.
type Stats struct {
	TotalAllocated   int64
	TotalDeallocated int64
	CurrentlyActive  int64
	AllocationCount  int64
}

type allocation struct {
	size        int64
	tag         string
	allocatedAt time.Time
}

type tracker struct {
	mu           sync.Mutex
	live         map[uint64]allocation
	totalAlloc   int64
	totalDealloc int64
	allocCount   int64
}

var mats = &tracker{live: make(map[uint64]allocation)}

func (t *tracker) add(id uint64, size int64, tag string) {
	atomic.AddInt64(&t.totalAlloc, size)
	atomic.AddInt64(&t.allocCount, 1)

	t.mu.Lock()
	t.live[id] = allocation{size: size, tag: tag, allocatedAt: time.Now()}
	t.mu.Unlock()
}

func (t *tracker) remove(id uint64) {
	t.mu.Lock()
	info, ok := t.live[id]
	delete(t.live, id)
	t.mu.Unlock()

	if ok {
		atomic.AddInt64(&t.totalDealloc, info.size)
	}
}

// MatStats returns a snapshot of Mat allocations since process start.
func MatStats() Stats {
	mats.mu.Lock()
	active := int64(len(mats.live))
	mats.mu.Unlock()

	return Stats{
		TotalAllocated:   atomic.LoadInt64(&mats.totalAlloc),
		TotalDeallocated: atomic.LoadInt64(&mats.totalDealloc),
		CurrentlyActive:  active,
		AllocationCount:  atomic.LoadInt64(&mats.allocCount),
	}
}

// LiveTags lists, in no particular order, the tags of Mats open for longer
// than olderThan. A non-positive olderThan lists every open Mat.
func LiveTags(olderThan time.Duration) []string {
	mats.mu.Lock()
	defer mats.mu.Unlock()

	threshold := time.Now().Add(-olderThan)
	var tags []string
	for _, info := range mats.live {
		if info.allocatedAt.Before(threshold) || olderThan <= 0 {
			tags = append(tags, info.tag)
		}
	}
	return tags
}
