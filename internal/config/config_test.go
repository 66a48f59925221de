package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"HTTP_ADDR", "SHUTDOWN_TIMEOUT", "DATABASE_DRIVER", "DATABASE_URL", "LOCK_TIMEOUT_MS",
	"EPAY_PID", "EPAY_KEY", "CALLBACK_METHOD", "REPLAY_WINDOW_MINUTES",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM", "SHOP_NAME",
	"NOTIFY_TIMEOUT_MS", "WORKER_MIN", "WORKER_MAX", "WORKER_COUNT", "SCALE_INTERVAL_MS",
	"SCALE_UP_BACKLOG_PER_WORKER", "SCALE_DOWN_IDLE_TICKS", "QUEUE_HIGH_WATERMARK",
	"CALLBACK_RATE_RPS", "CALLBACK_RATE_BURST", "SENTRY_DSN", "LOG_LEVEL", "CONFIG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c := Load()
	if c.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr default")
	}
	if c.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout default")
	}
	if c.DatabaseDriver != "memory" || c.LockTimeout != 5*time.Second {
		t.Fatalf("database defaults: %+v", c)
	}
	if c.ReplayWindow != 30*time.Minute {
		t.Fatalf("ReplayWindow default %v", c.ReplayWindow)
	}
	if c.CallbackMethod != "GET" || c.EpayPID != "" {
		t.Fatalf("gateway defaults: %+v", c)
	}
	if c.WorkerMin != 1 || c.WorkerMax != 4 || c.InitialWorkerCount != 1 {
		t.Fatalf("worker bounds default")
	}
	if c.ScaleInterval != 500*time.Millisecond {
		t.Fatalf("ScaleInterval default")
	}
	if c.SMTPPort != 465 || c.SMTPEnabled() {
		t.Fatalf("smtp defaults: %+v", c)
	}
	if c.CallbackRateRPS != 50 || c.CallbackRateBurst != 100 {
		t.Fatalf("rate defaults")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "2")
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("REPLAY_WINDOW_MINUTES", "51")
	t.Setenv("CALLBACK_METHOD", "post")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "shop@example.com")
	t.Setenv("WORKER_MIN", "2")
	t.Setenv("WORKER_MAX", "3")
	t.Setenv("CALLBACK_RATE_RPS", "0.5")
	c := Load()
	if c.HTTPAddr != ":9090" || c.ShutdownTimeout != 2*time.Second {
		t.Fatalf("server env")
	}
	if c.DatabaseDriver != "sqlite" {
		t.Fatalf("driver should be lowercased, got %q", c.DatabaseDriver)
	}
	if c.ReplayWindow != 51*time.Minute {
		t.Fatalf("ReplayWindow env")
	}
	if c.CallbackMethod != "POST" {
		t.Fatalf("CallbackMethod env")
	}
	if c.SMTPFrom != "shop@example.com" || !c.SMTPEnabled() {
		t.Fatalf("SMTPFrom should fall back to SMTP_USER")
	}
	if c.WorkerMin != 2 || c.WorkerMax != 3 || c.InitialWorkerCount != 2 {
		t.Fatalf("workers env")
	}
	if c.CallbackRateRPS != 0.5 {
		t.Fatalf("rate env")
	}
}

func TestLoadInvalidReplayWindowFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPLAY_WINDOW_MINUTES", "-3")
	if c := Load(); c.ReplayWindow != 30*time.Minute {
		t.Fatalf("expected default window, got %v", c.ReplayWindow)
	}
}

func TestLoadConfigFileUnderEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "epay_pid: \"1001\"\nepay_key: file-secret\nhttp_addr: \":7070\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":6060")
	c := Load()
	if c.EpayPID != "1001" || c.EpayKey != "file-secret" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.HTTPAddr != ":6060" {
		t.Fatalf("env should win over file, got %q", c.HTTPAddr)
	}
}
