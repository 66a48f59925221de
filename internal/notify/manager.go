package notify

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/model"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

// Manager coordinates workers delivering queued notifications and scales
// them with the backlog.
type Manager struct {
	cfg     config.Config
	q       *Queue
	sender  Notifier
	timeout time.Duration
	seq     Sequencer
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager delivering through sender.
func NewManager(cfg config.Config, q *Queue, sender Notifier) *Manager {
	if sender == nil {
		sender = Nop{}
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{cfg: cfg, q: q, sender: sender, timeout: timeout}
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	initial := m.cfg.InitialWorkerCount
	if initial <= 0 {
		initial = 1
	}
	m.addWorkers(initial)
	if m.cfg.ScaleInterval > 0 {
		go m.scaler()
	}
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Info("notify workers scaled", "worker_count", len(m.workerCancels))
}

// removeWorkers stops up to n workers.
func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Info("notify workers scaled", "worker_count", len(m.workerCancels))
}

// worker drains jobs from the queue and delivers them.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.q.Out():
			err := m.deliver(j)
			m.q.MarkProcessed(err != nil)
		}
	}
}

// deliver sends one notification under the delivery timeout. The context is
// detached from the worker so a scale-down does not cut a send in half.
func (m *Manager) deliver(j job) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			obs.Logger.Error("notification_panic", "sequence", j.seq, "order_no", j.n.OrderNo, "panic", r)
			err = ErrNotificationFailed
		}
	}()
	start := time.Now()
	if err = m.sender.Notify(ctx, j.n); err != nil {
		obs.Logger.Error("notification_failed",
			"sequence", j.seq,
			"order_no", j.n.OrderNo,
			"kind", string(j.n.Kind),
			"error", err,
		)
		obs.Counters.Add("notification_failed", 1)
		return err
	}
	obs.Logger.Info("notification_sent",
		"sequence", j.seq,
		"order_no", j.n.OrderNo,
		"kind", string(j.n.Kind),
		"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}

// Dispatch queues a notification without blocking. It returns false once
// intake is closed.
func (m *Manager) Dispatch(n model.Notification) bool {
	seq := m.seq.Next()
	if !m.q.Enqueue(job{seq: seq, n: n}) {
		obs.Logger.Warn("notification_dropped", "sequence", seq, "order_no", n.OrderNo, "kind", string(n.Kind))
		return false
	}
	return true
}

// BacklogSize returns pending items in the queue.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// IsShuttingDown reports whether new notifications are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future notifications.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// Metrics exposes the underlying queue metrics.
func (m *Manager) Metrics() Metrics { return m.q.Metrics() }

// DrainUntil blocks until the queue is fully drained or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		mt := m.q.Metrics()
		if mt.Backlog == 0 && mt.Depth == 0 && mt.Enqueued == mt.Processed {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
