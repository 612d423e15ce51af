package toolserver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/LY-Tri/Spider2/internal/metrics"
)

// ErrResourceExhausted is returned when a tool's wait queue is saturated.
// Callers may surface it to the model as an error observation; it never
// aborts a session.
var ErrResourceExhausted = errors.New("tool worker queue saturated")

// workerPool bounds concurrent executions of one tool. Capacity is fixed for
// the pool's lifetime; waiters beyond queueDepth are rejected immediately.
type workerPool struct {
	tool       string
	slots      chan struct{}
	queueDepth int
	pending    atomic.Int64
}

func newWorkerPool(tool string, workers, queueDepth int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &workerPool{
		tool:       tool,
		slots:      make(chan struct{}, workers),
		queueDepth: queueDepth,
	}
}

func (p *workerPool) capacity() int {
	return cap(p.slots)
}

// acquire blocks until a slot frees, the context ends, or the queue bound is
// exceeded. The bound covers holders plus waiters, so a burst fails fast
// instead of piling up without limit.
func (p *workerPool) acquire(ctx context.Context) error {
	if p.pending.Add(1) > int64(cap(p.slots)+p.queueDepth) {
		p.pending.Add(-1)
		metrics.RecordQueueReject(p.tool)
		return ErrResourceExhausted
	}

	start := time.Now()
	select {
	case p.slots <- struct{}{}:
		metrics.RecordQueueWait(p.tool, time.Since(start))
		return nil
	case <-ctx.Done():
		p.pending.Add(-1)
		return ctx.Err()
	}
}

// release frees a slot. Must be called exactly once per successful acquire.
func (p *workerPool) release() {
	<-p.slots
	p.pending.Add(-1)
}

// inFlight reports holders plus waiters, used by tests and the health view.
func (p *workerPool) inFlight() int64 {
	return p.pending.Load()
}
