// Package alert validates notification targets and delivers messages over
// the configured channels: an email relay, a whatsapp relay, or a direct
// webhook. Validation and delivery are deliberately separate so callers can
// reject a bad target at configuration time instead of at fire time.
package alert
