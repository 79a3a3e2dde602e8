package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskwatch/taskwatch/internal/alert"
	"github.com/taskwatch/taskwatch/internal/store"
)

// Gating defaults, overridable via Config.
const (
	defaultFailureThreshold = 3
	defaultCooldown         = 15 * time.Minute
)

// Store is the slice of the client store the engine mutates.
type Store interface {
	GetClient(ctx context.Context, id string) (store.Client, error)
	MarkSuccess(ctx context.Context, id string, latencyMs int64, at time.Time) error
	MarkFailure(ctx context.Context, id, errMsg string, at time.Time) error
	StampAlert(ctx context.Context, id string, at time.Time) error
	SetTeam(ctx context.Context, id, teamID string) error
}

// Prober performs the external-API work of a probe on behalf of the engine.
type Prober interface {
	// Probe runs one full workspace fetch for the client. A nil error is a
	// healthy integration.
	Probe(ctx context.Context, c store.Client) error
	// Handshake re-resolves the client's workspace, returning the id to
	// store. Used when recovering a client whose stored workspace is stale.
	Handshake(ctx context.Context, c store.Client) (teamID string, err error)
}

// Dispatcher delivers failure alerts. Satisfied by alert.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, ch alert.Channel, target string, msg alert.Message) (alert.Result, error)
}

// Config tunes alert gating.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

// CheckResult is the outcome of one health check or recovery cycle.
type CheckResult struct {
	OK        bool         `json:"ok"`
	Recovered bool         `json:"recovered,omitempty"`
	LatencyMs int64        `json:"latencyMs"`
	Error     string       `json:"error,omitempty"`
	Client    store.Client `json:"client"`
}

// Engine runs health probes against client integrations, maintains their
// counters, and fires throttled alerts on failure streaks.
type Engine struct {
	store      Store
	prober     Prober
	dispatcher Dispatcher
	cfg        Config

	now func() time.Time
}

// NewEngine creates an Engine. dispatcher may be nil when alerting is
// disabled globally.
func NewEngine(st Store, prober Prober, dispatcher Dispatcher, cfg Config) *Engine {
	return &Engine{
		store:      st,
		prober:     prober,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// ShouldEmitAlert reports whether a failure alert is currently eligible for
// the client: alerting configured, failure streak at or past the threshold,
// and no alert delivered within the cooldown window.
func (e *Engine) ShouldEmitAlert(c store.Client) bool {
	if !c.AlertEnabled {
		return false
	}
	if c.AlertChannel == nil || *c.AlertChannel == "" || c.AlertTarget == nil || *c.AlertTarget == "" {
		return false
	}
	if c.ConsecutiveFailures < e.cfg.FailureThreshold {
		return false
	}
	if c.LastAlertAt == nil {
		return true
	}
	return e.now().Sub(*c.LastAlertAt) >= e.cfg.Cooldown
}

// RunHealthCheck probes one client and records the outcome. On a failure
// streak it fires an eligible alert and, when allowAutoRecover is set and
// the client opted in, attempts one recovery cycle before giving up until
// the next scheduled probe. Manual checks pass allowAutoRecover false so
// they stay observational.
func (e *Engine) RunHealthCheck(ctx context.Context, c store.Client, allowAutoRecover bool) CheckResult {
	started := e.now()

	probeErr := e.prober.Probe(ctx, c)
	if probeErr == nil {
		return e.finishSuccess(ctx, c.ID, started, false)
	}

	errMsg := probeErr.Error()
	updated := e.recordFailure(ctx, c, errMsg)

	if allowAutoRecover && updated.AutoRecover && updated.ConsecutiveFailures >= e.cfg.FailureThreshold {
		if recovered, ok := e.tryRecover(ctx, updated, started); ok {
			return recovered
		}
		if refreshed, err := e.store.GetClient(ctx, c.ID); err == nil {
			updated = refreshed
		}
	}

	return CheckResult{OK: false, Error: errMsg, Client: updated}
}

// RunRecovery re-runs the workspace handshake for a client, re-probes with
// the refreshed workspace, and marks it Connected when both succeed.
// Invoked by operator action; the background path goes through
// RunHealthCheck's auto-recovery instead.
func (e *Engine) RunRecovery(ctx context.Context, c store.Client) CheckResult {
	started := e.now()

	teamID, err := e.prober.Handshake(ctx, c)
	if err != nil {
		errMsg := fmt.Sprintf("recover handshake: %v", err)
		updated := e.recordFailure(ctx, c, errMsg)
		return CheckResult{OK: false, Error: errMsg, Client: updated}
	}
	if err := e.store.SetTeam(ctx, c.ID, teamID); err != nil {
		slog.Error("health: persisting workspace failed", "client", c.ID, "err", err)
	}

	// A credential that passes the handshake can still be unable to fetch
	// tasks; only a full probe proves the integration is back.
	c.TeamID = &teamID
	if err := e.prober.Probe(ctx, c); err != nil {
		errMsg := fmt.Sprintf("recover probe: %v", err)
		updated := e.recordFailure(ctx, c, errMsg)
		return CheckResult{OK: false, Error: errMsg, Client: updated}
	}
	return e.finishSuccess(ctx, c.ID, started, true)
}

// tryRecover runs one handshake-plus-reprobe cycle. The second return is
// false when recovery failed and the failure has been recorded.
func (e *Engine) tryRecover(ctx context.Context, c store.Client, started time.Time) (CheckResult, bool) {
	slog.Info("health: attempting auto-recovery", "client", c.ID, "streak", c.ConsecutiveFailures)

	teamID, err := e.prober.Handshake(ctx, c)
	if err != nil {
		e.recordFailure(ctx, c, fmt.Sprintf("auto-recover handshake: %v", err))
		return CheckResult{}, false
	}
	if err := e.store.SetTeam(ctx, c.ID, teamID); err != nil {
		slog.Error("health: persisting workspace failed", "client", c.ID, "err", err)
	}

	c.TeamID = &teamID
	if err := e.prober.Probe(ctx, c); err != nil {
		e.recordFailure(ctx, c, fmt.Sprintf("auto-recover probe: %v", err))
		return CheckResult{}, false
	}

	result := e.finishSuccess(ctx, c.ID, started, false)
	result.Recovered = true
	slog.Info("health: auto-recovery succeeded", "client", c.ID)
	return result, true
}

func (e *Engine) finishSuccess(ctx context.Context, id string, started time.Time, zeroLatency bool) CheckResult {
	now := e.now()
	latency := now.Sub(started).Milliseconds()
	if latency < 0 || zeroLatency {
		latency = 0
	}
	if err := e.store.MarkSuccess(ctx, id, latency, now); err != nil {
		slog.Error("health: recording success failed", "client", id, "err", err)
	}
	updated, err := e.store.GetClient(ctx, id)
	if err != nil {
		slog.Error("health: reloading client failed", "client", id, "err", err)
	}
	return CheckResult{OK: true, LatencyMs: latency, Client: updated}
}

// recordFailure stores the failure and fires an alert when eligible,
// returning the refreshed client record.
func (e *Engine) recordFailure(ctx context.Context, c store.Client, errMsg string) store.Client {
	if err := e.store.MarkFailure(ctx, c.ID, errMsg, e.now()); err != nil {
		slog.Error("health: recording failure failed", "client", c.ID, "err", err)
		return c
	}
	updated, err := e.store.GetClient(ctx, c.ID)
	if err != nil {
		slog.Error("health: reloading client failed", "client", c.ID, "err", err)
		return c
	}
	e.emitAlertIfNeeded(ctx, updated, errMsg)
	return updated
}

func (e *Engine) emitAlertIfNeeded(ctx context.Context, c store.Client, reason string) {
	if e.dispatcher == nil || !e.ShouldEmitAlert(c) {
		return
	}
	ch, ok := alert.ParseChannel(*c.AlertChannel)
	if !ok {
		slog.Warn("health: client has invalid alert channel", "client", c.ID, "channel", *c.AlertChannel)
		return
	}

	msg := alert.Message{
		Subject: fmt.Sprintf("TaskWatch alert - %s", c.Name),
		Body: fmt.Sprintf("[ALERT] %s has %d consecutive failures. Reason: %s",
			c.Name, c.ConsecutiveFailures, reason),
		Payload: map[string]any{
			"type":                "client_health_failure",
			"clientId":            c.ID,
			"clientName":          c.Name,
			"reason":              reason,
			"consecutiveFailures": c.ConsecutiveFailures,
			"lastFailureAt":       c.LastFailureAt,
			"lastError":           c.LastError,
			"slug":                c.Slug,
		},
	}

	result, err := e.dispatcher.Dispatch(ctx, ch, *c.AlertTarget, msg)
	if err != nil {
		slog.Error("health: alert delivery failed", "client", c.ID, "err", err)
		return
	}
	if !result.Delivered {
		slog.Warn("health: alert skipped", "client", c.ID, "reason", result.Reason)
		return
	}
	// Only a delivered alert starts the cooldown clock.
	if err := e.store.StampAlert(ctx, c.ID, e.now()); err != nil {
		slog.Error("health: stamping alert failed", "client", c.ID, "err", err)
	}
	slog.Info("health: alert delivered", "client", c.ID, "streak", c.ConsecutiveFailures)
}
