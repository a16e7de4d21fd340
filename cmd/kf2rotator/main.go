package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/kf2rotator/internal/config"
	"github.com/dreamware/kf2rotator/internal/logging"
	"github.com/dreamware/kf2rotator/internal/rotation"
	"github.com/dreamware/kf2rotator/internal/session"
	"github.com/dreamware/kf2rotator/internal/transport"
	"github.com/dreamware/kf2rotator/internal/webadmin"
)

func main() {
	configPath := flag.String("config", getenv("KF2_CONFIG", config.DefaultFile), "path to the YAML configuration file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "kf2rotator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closer := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer closer.Close()
	slog.SetDefault(log)

	sched, jar, err := newScheduler(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("rotator starting",
		"config", configPath,
		"servers", len(cfg.Servers),
		"enabled", len(cfg.Enabled()),
		"poll_interval", cfg.Global.PollInterval,
		"threshold", cfg.Global.UnresponsiveThreshold)
	for _, s := range cfg.Enabled() {
		if !s.GameMode.IsKnown() {
			log.Warn("game mode is not a stock mode, sending it as configured",
				"server", s.Name, "game_mode", s.GameMode)
		}
	}

	if once {
		sched.RunOnce(ctx)
		return nil
	}

	status := newStatusServer(sched.Registry(), jar)
	sched.SetOnCycle(status.recordCycle)

	var httpSrv *http.Server
	if cfg.Global.StatusAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.Global.StatusAddr,
			Handler:           status.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("status listener started", "addr", cfg.Global.StatusAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status listener failed", "err", err)
			}
		}()
	}

	sched.Start(ctx)

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	log.Info("rotator stopped")
	return nil
}

// newScheduler wires transport, protocol client, controller and registry
// for every configured server. The returned jar holds the sessions of all
// endpoints.
func newScheduler(cfg *config.Config, log *slog.Logger) (*rotation.Scheduler, *session.Jar, error) {
	settings := cfg.Settings()

	tr := transport.New(transport.Options{
		Timeout:           settings.RequestTimeout,
		RequestsPerSecond: settings.RequestsPerSecond,
		Logger:            log.With("component", "transport"),
	})
	admin := webadmin.NewClient(tr, nil, settings.AdminPath, log.With("component", "webadmin"))

	registry, err := rotation.NewRegistry(settings, cfg.Servers)
	if err != nil {
		return nil, nil, err
	}
	ctrl := rotation.NewController(admin, settings, log.With("component", "rotation"))
	return rotation.NewScheduler(ctrl, registry, settings.PollInterval, log), tr.Jar(), nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
