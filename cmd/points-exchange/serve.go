package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/fulfillment"
	httpapi "github.com/fairyhunter13/points-exchange/internal/http"
	"github.com/fairyhunter13/points-exchange/internal/notify"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	obs.InitLogger(cfg.LogLevel)
	if err := obs.InitSentry(cfg.SentryDSN, Version); err != nil {
		obs.Logger.Warn("sentry_init_failed", "error", err)
	}
	defer obs.FlushSentry(2 * time.Second)
	obs.Logger.Info("service_starting", "version", Version, "database_driver", cfg.DatabaseDriver)
	if cfg.EpayKey == "" {
		obs.Logger.Warn("epay_key_missing", "effect", "every callback will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var sender notify.Notifier = notify.Nop{}
	if cfg.SMTPEnabled() {
		sender = notify.NewSMTP(cfg)
	} else {
		obs.Logger.Warn("smtp_disabled", "effect", "notifications are logged only")
	}
	mgr := notify.NewManager(cfg, notify.NewQueue(128), sender)
	mgr.Start(ctx)

	engine := fulfillment.New(cfg, st.ledger, st.journal, mgr)
	app := httpapi.NewApp(cfg, engine, st.ledger, mgr)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		obs.Logger.Info("shutdown_signal", "signal", s.String())
	case err := <-errc:
		obs.Logger.Error("http_server_error", "error", err)
		mgr.Stop()
		return err
	}

	app.StartShutdown()
	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}

	// Callbacks already decided may still have notifications in flight.
	mgr.CloseIntake()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "worker_count", mgr.WorkerCount())
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped")
	return nil
}
