package health

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/taskwatch/taskwatch/internal/store"
)

// Timer defaults and floors.
const (
	defaultWarmupInterval = 10 * time.Minute
	minWarmupInterval     = time.Minute
	defaultHealthInterval = time.Minute
	minHealthInterval     = 15 * time.Second

	warmupBatchSize = 10
	healthBatchSize = 25
)

// Lister is the slice of the client store the monitor reads its batches
// from.
type Lister interface {
	ListConnected(ctx context.Context, limit int) ([]store.Client, error)
	ListTracked(ctx context.Context, limit int) ([]store.Client, error)
}

// MonitorConfig tunes the two background timers. Zero values take the
// defaults; sub-minimum intervals are raised to the floor.
type MonitorConfig struct {
	WarmupInterval time.Duration
	HealthInterval time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.WarmupInterval <= 0 {
		c.WarmupInterval = defaultWarmupInterval
	}
	if c.WarmupInterval < minWarmupInterval {
		c.WarmupInterval = minWarmupInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if c.HealthInterval < minHealthInterval {
		c.HealthInterval = minHealthInterval
	}
	return c
}

// Monitor owns the two background timers: a warmup pass that pre-builds
// dashboards for connected clients, and a health pass that probes every
// tracked client. The timers are independent; each skips a tick if its own
// previous tick is still running, but never blocks the other.
type Monitor struct {
	engine *Engine
	lister Lister
	cfg    MonitorConfig

	warmupRunning atomic.Bool
	healthRunning atomic.Bool
}

// NewMonitor creates a Monitor driving the given engine.
func NewMonitor(engine *Engine, lister Lister, cfg MonitorConfig) *Monitor {
	return &Monitor{engine: engine, lister: lister, cfg: cfg.withDefaults()}
}

// Run blocks, driving both timers until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	warmup := time.NewTicker(m.cfg.WarmupInterval)
	defer warmup.Stop()
	health := time.NewTicker(m.cfg.HealthInterval)
	defer health.Stop()

	slog.Info("monitor: started",
		"warmup_interval", m.cfg.WarmupInterval,
		"health_interval", m.cfg.HealthInterval,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor: stopped")
			return
		case <-warmup.C:
			if m.warmupRunning.CompareAndSwap(false, true) {
				go func() {
					defer m.warmupRunning.Store(false)
					m.WarmupTick(ctx)
				}()
			} else {
				slog.Debug("monitor: warmup tick still running — skipping")
			}
		case <-health.C:
			if m.healthRunning.CompareAndSwap(false, true) {
				go func() {
					defer m.healthRunning.Store(false)
					m.HealthTick(ctx)
				}()
			} else {
				slog.Debug("monitor: health tick still running — skipping")
			}
		}
	}
}

// WarmupTick pre-builds dashboards for a batch of connected clients. A
// warmup failure is logged and nothing more: health counters, status, and
// alerting belong to the health timer alone.
func (m *Monitor) WarmupTick(ctx context.Context) {
	clients, err := m.lister.ListConnected(ctx, warmupBatchSize)
	if err != nil {
		slog.Error("monitor: listing connected clients failed", "err", err)
		return
	}
	for _, c := range clients {
		if ctx.Err() != nil {
			return
		}
		if err := m.engine.prober.Probe(ctx, c); err != nil {
			slog.Warn("monitor: warmup build failed", "client", c.ID, "err", err)
		}
	}
	if len(clients) > 0 {
		slog.Debug("monitor: warmup tick complete", "clients", len(clients))
	}
}

// HealthTick probes a batch of tracked clients. Each client is isolated:
// one probe's failure never stops the rest of the batch.
func (m *Monitor) HealthTick(ctx context.Context) {
	clients, err := m.lister.ListTracked(ctx, healthBatchSize)
	if err != nil {
		slog.Error("monitor: listing tracked clients failed", "err", err)
		return
	}
	for _, c := range clients {
		if ctx.Err() != nil {
			return
		}
		result := m.engine.RunHealthCheck(ctx, c, true)
		if !result.OK {
			slog.Warn("monitor: health check failed",
				"client", c.ID,
				"streak", result.Client.ConsecutiveFailures,
				"err", result.Error,
			)
		}
	}
	if len(clients) > 0 {
		slog.Debug("monitor: health tick complete", "clients", len(clients))
	}
}
