package store

import "time"

// Client connection statuses. NotConnected only ever appears before the
// first successful handshake; after that a client flips between Connected
// and Offline.
const (
	StatusConnected    = "Connected"
	StatusOffline      = "Offline"
	StatusNotConnected = "Not Connected"
)

// Client is one tenant integration record.
type Client struct {
	ID     string  `db:"id" json:"id"`
	Name   string  `db:"name" json:"name"`
	Slug   string  `db:"slug" json:"slug"`
	Token  string  `db:"token" json:"-"`
	TeamID *string `db:"team_id" json:"teamId"`

	Status string `db:"status" json:"status"`

	SuccessCount        int        `db:"success_count" json:"successCount"`
	FailureCount        int        `db:"failure_count" json:"failureCount"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutiveFailures"`
	LastLatencyMs       *int64     `db:"last_latency_ms" json:"lastLatencyMs"`
	LastCheckAt         *time.Time `db:"last_check_at" json:"lastCheckAt"`
	LastSuccessAt       *time.Time `db:"last_success_at" json:"lastSuccessAt"`
	LastFailureAt       *time.Time `db:"last_failure_at" json:"lastFailureAt"`
	LastError           *string    `db:"last_error" json:"lastError"`

	AlertEnabled bool       `db:"alert_enabled" json:"alertEnabled"`
	AlertChannel *string    `db:"alert_channel" json:"alertChannel"`
	AlertTarget  *string    `db:"alert_target" json:"alertTarget"`
	WebhookURL   *string    `db:"webhook_url" json:"webhookUrl"`
	AutoRecover  bool       `db:"auto_recover" json:"autoRecover"`
	LastAlertAt  *time.Time `db:"last_alert_at" json:"lastAlertAt"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// AlertSettings is the mutable alerting slice of a Client.
type AlertSettings struct {
	AlertEnabled bool    `json:"alertEnabled"`
	AlertChannel *string `json:"alertChannel"`
	AlertTarget  *string `json:"alertTarget"`
	WebhookURL   *string `json:"webhookUrl"`
	AutoRecover  bool    `json:"autoRecover"`
}
