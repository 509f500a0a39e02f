package cartsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
)

// Queue is an unbounded FIFO of cart changes with a broker goroutine that
// feeds a buffered output channel. Enqueue never blocks.
type Queue struct {
	mu      sync.Mutex
	backlog []model.CartChange
	notify  chan struct{}
	out     chan model.CartChange
	closed  atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
}

// NewQueue creates a Queue whose output channel holds outBuffer changes.
func NewQueue(outBuffer int) *Queue {
	if outBuffer <= 0 {
		outBuffer = 16
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		out:    make(chan model.CartChange, outBuffer),
	}
}

// Start runs the broker until ctx is done.
func (q *Queue) Start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

func (q *Queue) broker(ctx context.Context, highWatermark int) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.flushOnce()
		if highWatermark > 0 {
			if sz := q.BacklogSize(); sz > highWatermark {
				obs.Logger.Warn("cart_sync_backlog_high", "backlog_size", sz, "high_watermark", highWatermark)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// flushOnce moves as much backlog as fits into the output buffer, oldest first.
func (q *Queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.backlog) > 0 && len(q.out) < cap(q.out) {
		ch := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.out <- ch
	}
}

// Enqueue appends ch to the backlog. It returns false once intake is closed.
func (q *Queue) Enqueue(ch model.CartChange) bool {
	if q.closed.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, ch)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) Out() <-chan model.CartChange { return q.out }

// BacklogSize returns changes not yet handed to the output channel.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Depth returns backlog plus buffered output.
func (q *Queue) Depth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

func (q *Queue) MarkProcessed() { q.processed.Add(1) }

// Stats returns counters and sizes.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Backlog:   q.BacklogSize(),
		Depth:     q.Depth(),
	}
}

// Stats is a point-in-time view of a Queue.
type Stats struct {
	Enqueued  uint64
	Processed uint64
	Backlog   int
	Depth     int
}

// Drained reports whether every enqueued change has been processed.
func (s Stats) Drained() bool {
	return s.Backlog == 0 && s.Depth == 0 && s.Enqueued == s.Processed
}

// CloseIntake rejects future enqueues.
func (q *Queue) CloseIntake() { q.closed.Store(true) }

func (q *Queue) IsClosed() bool { return q.closed.Load() }
