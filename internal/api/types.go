package api

import (
	"github.com/taskwatch/taskwatch/internal/health"
	"github.com/taskwatch/taskwatch/internal/store"
)

// ClientResponse is a client record together with its derived health view.
// The integration token never leaves the server.
type ClientResponse struct {
	store.Client
	Health health.Snapshot `json:"health"`
}

// ServiceHealthResponse is the payload for GET /api/v1/health.
type ServiceHealthResponse struct {
	Status      string `json:"status"`
	ClientCount int    `json:"clientCount"`
	Connected   int    `json:"connected"`
	Offline     int    `json:"offline"`
	GeneratedAt string `json:"generatedAt"` // RFC3339
}

// CreateClientRequest is the body for POST /api/v1/clients.
type CreateClientRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
	Slug  string `json:"slug,omitempty"`
}

// UpdateClientRequest is the body for PUT /api/v1/clients/{id}.
type UpdateClientRequest struct {
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
	Slug  string `json:"slug,omitempty"`
}

// TestAlertRequest is the body for POST /api/v1/clients/{id}/alerts/test
// and /kpi/send. Empty fields fall back to the client's stored alert
// settings; webhookUrl alone implies the webhook channel.
type TestAlertRequest struct {
	Channel    string `json:"channel,omitempty"`
	Target     string `json:"target,omitempty"`
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// TestAlertResponse reports a test dispatch outcome. Delivered false with a
// reason means the dispatch was skipped, not that the relay failed.
type TestAlertResponse struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toClientResponse(c store.Client) ClientResponse {
	return ClientResponse{Client: c, Health: health.ComputeSnapshot(c)}
}
