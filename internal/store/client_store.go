package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxErrorLen bounds the stored probe error message.
const maxErrorLen = 1500

// CreateClient inserts a new client. Generates a UUID if ID is empty and a
// slug from the name if Slug is empty. New clients start Not Connected.
func (s *SQLiteStore) CreateClient(ctx context.Context, c Client) (Client, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Client{}, fmt.Errorf("client name must not be empty")
	}
	if strings.TrimSpace(c.Token) == "" {
		return Client{}, fmt.Errorf("client token must not be empty")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	if c.Status == "" {
		c.Status = StatusNotConnected
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.AutoRecover = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, name, slug, token, team_id, status,
			alert_enabled, alert_channel, alert_target, webhook_url, auto_recover,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Slug, c.Token, c.TeamID, c.Status,
		c.AlertEnabled, c.AlertChannel, c.AlertTarget, c.WebhookURL, c.AutoRecover,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return Client{}, fmt.Errorf("creating client: %w", err)
	}
	return c, nil
}

// GetClient fetches one client by id.
func (s *SQLiteStore) GetClient(ctx context.Context, id string) (Client, error) {
	return s.getWhere(ctx, "id = ?", id)
}

// GetClientBySlug fetches one client by its public slug.
func (s *SQLiteStore) GetClientBySlug(ctx context.Context, slug string) (Client, error) {
	return s.getWhere(ctx, "slug = ?", slug)
}

// GetClientByToken fetches one client by its integration token.
func (s *SQLiteStore) GetClientByToken(ctx context.Context, token string) (Client, error) {
	return s.getWhere(ctx, "token = ?", token)
}

func (s *SQLiteStore) getWhere(ctx context.Context, where string, arg any) (Client, error) {
	var c Client
	err := s.db.GetContext(ctx, &c, "SELECT * FROM clients WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("fetching client: %w", err)
	}
	return c, nil
}

// ListClients returns the whole fleet, most recently updated first.
func (s *SQLiteStore) ListClients(ctx context.Context) ([]Client, error) {
	var clients []Client
	err := s.db.SelectContext(ctx, &clients, "SELECT * FROM clients ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	return clients, nil
}

// ListConnected returns up to limit Connected clients, most recently
// updated first. Used by the warmup timer.
func (s *SQLiteStore) ListConnected(ctx context.Context, limit int) ([]Client, error) {
	var clients []Client
	err := s.db.SelectContext(ctx, &clients, `
		SELECT * FROM clients
		WHERE status = ?
		ORDER BY updated_at DESC
		LIMIT ?`, StatusConnected, limit)
	if err != nil {
		return nil, fmt.Errorf("listing connected clients: %w", err)
	}
	return clients, nil
}

// ListTracked returns up to limit clients the health monitor should probe:
// those that are Connected or currently showing failures.
func (s *SQLiteStore) ListTracked(ctx context.Context, limit int) ([]Client, error) {
	var clients []Client
	err := s.db.SelectContext(ctx, &clients, `
		SELECT * FROM clients
		WHERE status = ? OR consecutive_failures > 0
		ORDER BY updated_at DESC
		LIMIT ?`, StatusConnected, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tracked clients: %w", err)
	}
	return clients, nil
}

// UpdateClient updates a client's identity fields (name, slug, token).
func (s *SQLiteStore) UpdateClient(ctx context.Context, c Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("client name must not be empty")
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET
			name = ?, slug = ?, token = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Slug, c.Token, time.Now().UTC(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating client %s: %w", c.ID, err)
	}
	return requireRow(result)
}

// UpdateAlertSettings replaces a client's alerting configuration.
func (s *SQLiteStore) UpdateAlertSettings(ctx context.Context, id string, settings AlertSettings) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET
			alert_enabled = ?, alert_channel = ?, alert_target = ?,
			webhook_url = ?, auto_recover = ?, updated_at = ?
		WHERE id = ?`,
		settings.AlertEnabled, settings.AlertChannel, settings.AlertTarget,
		settings.WebhookURL, settings.AutoRecover, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating alert settings for %s: %w", id, err)
	}
	return requireRow(result)
}

// SetTeam records the workspace resolved during a handshake.
func (s *SQLiteStore) SetTeam(ctx context.Context, id, teamID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE clients SET team_id = ?, updated_at = ? WHERE id = ?",
		teamID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting team for %s: %w", id, err)
	}
	return requireRow(result)
}

// DeleteClient removes a client by id.
func (s *SQLiteStore) DeleteClient(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting client %s: %w", id, err)
	}
	return requireRow(result)
}

// MarkSuccess records a successful probe: the success counter increments in
// a single statement so concurrent probes cannot lose an increment, the
// failure streak resets, and the client flips to Connected.
func (s *SQLiteStore) MarkSuccess(ctx context.Context, id string, latencyMs int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET
			success_count = success_count + 1,
			consecutive_failures = 0,
			status = ?,
			last_latency_ms = ?,
			last_check_at = ?,
			last_success_at = ?,
			last_error = NULL,
			updated_at = ?
		WHERE id = ?`,
		StatusConnected, latencyMs, at.UTC(), at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking success for %s: %w", id, err)
	}
	return requireRow(result)
}

// MarkFailure records a failed probe: both failure counters increment in a
// single statement, the client flips to Offline, and the error message is
// stored truncated.
func (s *SQLiteStore) MarkFailure(ctx context.Context, id, errMsg string, at time.Time) error {
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET
			failure_count = failure_count + 1,
			consecutive_failures = consecutive_failures + 1,
			status = ?,
			last_check_at = ?,
			last_failure_at = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = ?`,
		StatusOffline, at.UTC(), at.UTC(), errMsg, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking failure for %s: %w", id, err)
	}
	return requireRow(result)
}

// StampAlert records a delivered alert. Skipped and failed deliveries must
// not stamp, so the next eligible tick can retry.
func (s *SQLiteStore) StampAlert(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE clients SET last_alert_at = ?, updated_at = ? WHERE id = ?",
		at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("stamping alert for %s: %w", id, err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// slugify lowercases a name and collapses non-alphanumeric runs to hyphens.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return uuid.New().String()
	}
	return out
}
