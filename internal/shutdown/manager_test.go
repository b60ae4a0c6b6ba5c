package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"gpusift/internal/logger"
)

type recorder struct {
	mu    sync.Mutex
	order *[]string
	name  string
	block chan struct{}
}

func (r *recorder) Shutdown() {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.order = append(*r.order, r.name)
}

func TestShutdownReverseOrderOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	var order []string
	m := NewManager(logger.NewNop(), time.Second)
	m.Listen()
	m.Register(&recorder{order: &order, name: "context"})
	m.Register(&recorder{order: &order, name: "extractor"})

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"extractor", "context"}, order)
	assert.Error(t, m.Context().Err())
	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestShutdownTimesOutStuckComponent(t *testing.T) {
	var order []string
	block := make(chan struct{})
	defer close(block)

	m := NewManager(logger.NewNop(), 20*time.Millisecond)
	m.Register(&recorder{order: &order, name: "ok"})
	m.Register(&recorder{order: &order, name: "stuck", block: block})

	start := time.Now()
	m.Shutdown()
	assert.Less(t, time.Since(start), time.Second)
}
