package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// relayTimeout bounds one delivery attempt end to end.
const relayTimeout = 15 * time.Second

// Skip reasons returned when a dispatch is not attempted.
const (
	ReasonInvalidChannel        = "invalid_channel"
	ReasonMissingTarget         = "missing_target"
	ReasonEmailNotConfigured    = "email_webhook_not_configured"
	ReasonWhatsappNotConfigured = "whatsapp_webhook_not_configured"
)

// Message is one notification to deliver.
type Message struct {
	Subject string
	Body    string
	Payload any // optional structured payload forwarded to the relay
}

// Result reports the outcome of a dispatch. Reason is set only when the
// delivery was skipped without an attempt.
type Result struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// Dispatcher routes messages to the relay endpoint of their channel.
// Email and whatsapp need a pre-configured relay URL; the webhook channel
// posts directly to the caller-supplied target.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	emailRelayURL    string
	whatsappRelayURL string
	client           *http.Client
}

// NewDispatcher creates a Dispatcher. Empty relay URLs are valid: the
// matching channel reports not-configured instead of attempting delivery.
func NewDispatcher(emailRelayURL, whatsappRelayURL string) *Dispatcher {
	return &Dispatcher{
		emailRelayURL:    emailRelayURL,
		whatsappRelayURL: whatsappRelayURL,
		client:           &http.Client{Timeout: relayTimeout},
	}
}

// Dispatch delivers msg to target over ch. A skipped delivery (unknown
// channel, empty target, unconfigured relay) returns Delivered false with a
// reason and a nil error; an attempted delivery that fails returns the
// transport error.
func (d *Dispatcher) Dispatch(ctx context.Context, ch Channel, target string, msg Message) (Result, error) {
	switch ch {
	case ChannelEmail, ChannelWhatsapp, ChannelWebhook:
	default:
		slog.Warn("alert: unknown channel — skipping", "channel", string(ch))
		return Result{Reason: ReasonInvalidChannel}, nil
	}

	target = NormalizeTarget(ch, target)
	if target == "" {
		return Result{Reason: ReasonMissingTarget}, nil
	}

	var err error
	switch ch {
	case ChannelEmail:
		if d.emailRelayURL == "" {
			return Result{Reason: ReasonEmailNotConfigured}, nil
		}
		err = d.post(ctx, d.emailRelayURL, relayEnvelope(target, msg))
	case ChannelWhatsapp:
		if d.whatsappRelayURL == "" {
			return Result{Reason: ReasonWhatsappNotConfigured}, nil
		}
		err = d.post(ctx, d.whatsappRelayURL, relayEnvelope(target, msg))
	case ChannelWebhook:
		// The generic webhook gets the raw payload, not a relay envelope.
		err = d.post(ctx, target, webhookBody(msg))
	}

	if err != nil {
		slog.Error("alert: delivery failed", "channel", string(ch), "err", err)
		return Result{}, err
	}
	slog.Debug("alert: delivered", "channel", string(ch))
	return Result{Delivered: true}, nil
}

func relayEnvelope(target string, msg Message) map[string]any {
	env := map[string]any{
		"to":      target,
		"subject": msg.Subject,
		"message": msg.Body,
	}
	if msg.Payload != nil {
		env["payload"] = msg.Payload
	}
	return env
}

// webhookBody is the raw payload when one is set; a message without a
// structured payload still delivers something useful.
func webhookBody(msg Message) any {
	if msg.Payload != nil {
		return msg.Payload
	}
	return map[string]any{"message": msg.Body}
}

func (d *Dispatcher) post(ctx context.Context, url string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay returned HTTP %d", resp.StatusCode)
	}
	return nil
}
