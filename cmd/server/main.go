package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/taskwatch/taskwatch/internal/alert"
	"github.com/taskwatch/taskwatch/internal/api"
	"github.com/taskwatch/taskwatch/internal/config"
	"github.com/taskwatch/taskwatch/internal/dashboard"
	"github.com/taskwatch/taskwatch/internal/health"
	"github.com/taskwatch/taskwatch/internal/kpi"
	"github.com/taskwatch/taskwatch/internal/store"
	"github.com/taskwatch/taskwatch/internal/taskapi"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("taskwatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage_path", cfg.Server.Storage.Path,
		"warmup_interval", cfg.Server.Monitor.WarmupInterval,
		"health_interval", cfg.Server.Monitor.HealthInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// current holds the live config. Upstream API settings and KPI options
	// follow reloads; ports, storage, and timer intervals need a restart.
	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	st, err := store.NewSQLiteStore(cfg.Server.Storage.Path)
	if err != nil {
		slog.Error("failed to open client store", "path", cfg.Server.Storage.Path, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Per-client upstream API clients, one per credential, built against
	// whatever config is live at the time.
	newSource := func(token string) dashboard.TaskSource {
		upstream := current.Load().Server.TaskAPI
		opts := []taskapi.Option{}
		if upstream.BaseURL != "" {
			opts = append(opts, taskapi.WithBaseURL(upstream.BaseURL))
		}
		if upstream.Timeout > 0 {
			opts = append(opts, taskapi.WithTimeout(upstream.Timeout))
		}
		if upstream.PageSize > 0 || upstream.MaxPages > 0 {
			opts = append(opts, taskapi.WithPageLimits(upstream.PageSize, upstream.MaxPages))
		}
		return taskapi.NewClient(token, opts...)
	}

	kpiOpts := kpi.Options{NotStartedKeywords: cfg.Server.KPI.NotStartedKeywords}
	dash := dashboard.NewService(st, newSource, cfg.Server.Cache.TTL, kpiOpts)
	go dash.RunCacheEviction(ctx)

	go config.Watch(ctx, *configPath, func(next *config.Config) { //nolint:errcheck
		current.Store(next)
		dash.SetKPIOptions(kpi.Options{NotStartedKeywords: next.Server.KPI.NotStartedKeywords})
		if next.Server.HTTPPort != cfg.Server.HTTPPort ||
			next.Server.Storage.Path != cfg.Server.Storage.Path ||
			next.Server.Monitor != cfg.Server.Monitor {
			slog.Warn("config: port, storage, and timer changes apply on restart")
		}
	})

	dispatcher := alert.NewDispatcher(
		cfg.Server.Alerts.EmailRelayURL(),
		cfg.Server.Alerts.WhatsappRelayURL(),
	)

	engine := health.NewEngine(st, dash, dispatcher, health.Config{
		FailureThreshold: cfg.Server.Alerts.FailureThreshold,
		Cooldown:         cfg.Server.Alerts.Cooldown,
	})

	// Background warmup and health timers.
	monitor := health.NewMonitor(engine, st, health.MonitorConfig{
		WarmupInterval: cfg.Server.Monitor.WarmupInterval,
		HealthInterval: cfg.Server.Monitor.HealthInterval,
	})
	go monitor.Run(ctx)

	// REST API with optional API-key auth on the admin routes.
	handler := api.New(st, dash, engine, dispatcher)
	key := ""
	if cfg.Server.Auth.Mode == "apikey" {
		key = cfg.Server.Auth.Key()
		if key == "" {
			slog.Warn("auth mode is apikey but the key env is empty — admin API is open",
				"key_env", cfg.Server.Auth.KeyEnv)
		}
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.WithAPIKey(cfg.Server.Auth.EffectiveHeader(), key, handler),
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("taskwatch shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
