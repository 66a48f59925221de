package notify

import (
	"context"
	"testing"
	"time"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/model"
)

func TestManagerScaler_UpAndDown(t *testing.T) {
	// Configure aggressive scaling
	t.Setenv("WORKER_MIN", "1")
	t.Setenv("WORKER_MAX", "3")
	t.Setenv("WORKER_COUNT", "1")
	t.Setenv("SCALE_INTERVAL_MS", "50")
	t.Setenv("SCALE_UP_BACKLOG_PER_WORKER", "1")
	t.Setenv("SCALE_DOWN_IDLE_TICKS", "1")

	cfg := config.Load()
	slow := Func(func(context.Context, model.Notification) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	mgr := NewManager(cfg, NewQueue(2), slow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	for i := 0; i < 100; i++ {
		_ = mgr.Dispatch(model.Notification{OrderNo: "scale"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if wc := mgr.WorkerCount(); wc > 1 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if wc := mgr.WorkerCount(); wc <= 1 {
		t.Fatalf("expected scale up, worker_count=%d", wc)
	}

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if ok := mgr.DrainUntil(ctxDrain); !ok {
		t.Fatalf("drain timeout")
	}
	deadline2 := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline2) {
		if wc := mgr.WorkerCount(); wc == cfg.WorkerMin {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if wc := mgr.WorkerCount(); wc != cfg.WorkerMin {
		t.Fatalf("expected scale down to %d, got %d", cfg.WorkerMin, wc)
	}
}
