// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration knobs for the HTTP server, the payment gateway,
// the inventory store and the notification workers.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	DatabaseDriver string
	DatabaseURL    string
	LockTimeout    time.Duration

	// EpayPID, when set, must match the pid field of every callback.
	EpayPID        string
	EpayKey        string
	CallbackMethod string
	ReplayWindow   time.Duration

	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPFrom      string
	ShopName      string
	NotifyTimeout time.Duration

	InitialWorkerCount      int
	WorkerMin               int
	WorkerMax               int
	ScaleInterval           time.Duration
	ScaleUpBacklogPerWorker int
	ScaleDownIdleTicks      int
	QueueHighWatermark      int

	CallbackRateRPS   float64
	CallbackRateBurst int

	SentryDSN string
	LogLevel  string
}

// source resolves a key from the environment first, then from the optional
// config file.
type source struct {
	file *viper.Viper
}

func (s source) getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if s.file != nil && s.file.IsSet(strings.ToLower(key)) {
		if v := s.file.GetString(strings.ToLower(key)); v != "" {
			return v
		}
	}
	return def
}

func (s source) atoienv(key string, def int) int {
	v := s.getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s source) floatenv(key string, def float64) float64 {
	v := s.getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (s source) durenvms(key string, defMs int) time.Duration {
	ms := s.atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func (s source) durenvs(key string, defSec int) time.Duration {
	sec := s.atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func (s source) durenvmin(key string, defMin int) time.Duration {
	m := s.atoienv(key, defMin)
	if m <= 0 {
		m = defMin
	}
	return time.Duration(m) * time.Minute
}

// loadFile reads the YAML file named by CONFIG_FILE. A missing or unreadable
// file leaves only the environment and defaults in effect.
func loadFile() *viper.Viper {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil
	}
	return v
}

// Load collects configuration from environment with defaults.
func Load() Config {
	s := source{file: loadFile()}
	minWorkers := s.atoienv("WORKER_MIN", 1)
	maxWorkers := s.atoienv("WORKER_MAX", 4)
	initialWorkers := s.atoienv("WORKER_COUNT", minWorkers)
	smtpUser := s.getenv("SMTP_USER", "")
	return Config{
		HTTPAddr:        s.getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: s.durenvs("SHUTDOWN_TIMEOUT", 15),

		DatabaseDriver: strings.ToLower(s.getenv("DATABASE_DRIVER", "memory")),
		DatabaseURL:    s.getenv("DATABASE_URL", ""),
		LockTimeout:    s.durenvms("LOCK_TIMEOUT_MS", 5000),

		EpayPID:        s.getenv("EPAY_PID", ""),
		EpayKey:        s.getenv("EPAY_KEY", ""),
		CallbackMethod: strings.ToUpper(s.getenv("CALLBACK_METHOD", "GET")),
		ReplayWindow:   s.durenvmin("REPLAY_WINDOW_MINUTES", 30),

		SMTPHost:      s.getenv("SMTP_HOST", ""),
		SMTPPort:      s.atoienv("SMTP_PORT", 465),
		SMTPUser:      smtpUser,
		SMTPPassword:  s.getenv("SMTP_PASSWORD", ""),
		SMTPFrom:      s.getenv("SMTP_FROM", smtpUser),
		ShopName:      s.getenv("SHOP_NAME", "Points Shop"),
		NotifyTimeout: s.durenvms("NOTIFY_TIMEOUT_MS", 10000),

		InitialWorkerCount:      initialWorkers,
		WorkerMin:               minWorkers,
		WorkerMax:               maxWorkers,
		ScaleInterval:           s.durenvms("SCALE_INTERVAL_MS", 500),
		ScaleUpBacklogPerWorker: s.atoienv("SCALE_UP_BACKLOG_PER_WORKER", 20),
		ScaleDownIdleTicks:      s.atoienv("SCALE_DOWN_IDLE_TICKS", 6),
		QueueHighWatermark:      s.atoienv("QUEUE_HIGH_WATERMARK", 1000),

		CallbackRateRPS:   s.floatenv("CALLBACK_RATE_RPS", 50),
		CallbackRateBurst: s.atoienv("CALLBACK_RATE_BURST", 100),

		SentryDSN: s.getenv("SENTRY_DSN", ""),
		LogLevel:  s.getenv("LOG_LEVEL", "info"),
	}
}

// SMTPEnabled reports whether enough sender settings exist to deliver mail.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}
