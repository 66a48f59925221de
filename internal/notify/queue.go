package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/points-exchange/internal/model"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

// job is a queued notification with its dispatch sequence.
type job struct {
	seq uint64
	n   model.Notification
}

// Queue is a non-blocking notification backlog with a background broker
// feeding a bounded output channel.
type Queue struct {
	mu           sync.Mutex
	backlog      []job
	notify       chan struct{}
	out          chan job
	shuttingDown atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewQueue creates a Queue with a buffered output channel.
func NewQueue(outBuffer int) *Queue {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		out:    make(chan job, outBuffer),
	}
}

// Start runs the broker loop.
func (q *Queue) Start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

// broker moves backlog items to the output channel.
func (q *Queue) broker(ctx context.Context, highWatermark int) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.flushOnce()
		if highWatermark > 0 {
			if sz := q.BacklogSize(); sz > highWatermark {
				obs.Logger.Warn("notification backlog exceeds high watermark", "backlog_size", sz, "high_watermark", highWatermark)
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

// flushOnce drains backlog into the output buffer.
func (q *Queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.backlog) > 0 && len(q.out) < cap(q.out) {
		item := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.out <- item
	}
}

// Enqueue appends a job into the backlog and wakes the broker. It never
// blocks; false means intake is closed.
func (q *Queue) Enqueue(j job) bool {
	if q.shuttingDown.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, j)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Out exposes the output channel of jobs.
func (q *Queue) Out() <-chan job { return q.out }

// BacklogSize returns the number of enqueued-but-not-yet-output jobs.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// QueueDepth returns backlog plus buffered output items.
func (q *Queue) QueueDepth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

// MarkProcessed counts a finished job; failed marks delivery errors.
func (q *Queue) MarkProcessed(failed bool) {
	if failed {
		q.failed.Add(1)
	}
	q.processed.Add(1)
}

// Metrics reports counters and sizes for observability.
type Metrics struct {
	Enqueued  uint64 `json:"notifications_enqueued"`
	Processed uint64 `json:"notifications_processed"`
	Failed    uint64 `json:"notifications_failed"`
	Backlog   int    `json:"backlog_size"`
	Depth     int    `json:"queue_depth"`
}

// Metrics returns a snapshot of the queue counters.
func (q *Queue) Metrics() Metrics {
	return Metrics{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Backlog:   q.BacklogSize(),
		Depth:     q.QueueDepth(),
	}
}

// CloseIntake disallows future enqueues.
func (q *Queue) CloseIntake() { q.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.shuttingDown.Load() }

// Sequencer provides monotonically increasing sequence numbers.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
