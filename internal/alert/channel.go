package alert

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Channel is a supported alert delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsapp Channel = "whatsapp"
	ChannelWebhook  Channel = "webhook"
)

// ParseChannel maps a stored channel label to a Channel.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, true
	case ChannelWhatsapp:
		return ChannelWhatsapp, true
	case ChannelWebhook:
		return ChannelWebhook, true
	default:
		return "", false
	}
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
	phoneStrip   = regexp.MustCompile(`[^\d+]`)
)

// NormalizeTarget canonicalizes a target for its channel. Whatsapp numbers
// lose formatting characters and a leading international 00 becomes +.
// Other channels only trim whitespace.
func NormalizeTarget(ch Channel, target string) string {
	target = strings.TrimSpace(target)
	if ch != ChannelWhatsapp {
		return target
	}
	target = phoneStrip.ReplaceAllString(target, "")
	if strings.HasPrefix(target, "00") {
		target = "+" + target[2:]
	}
	return target
}

// ValidateTarget checks a normalized target against its channel's format.
// It returns a human-readable reason on failure and never has side effects.
func ValidateTarget(ch Channel, target string) error {
	target = NormalizeTarget(ch, target)
	if target == "" {
		return fmt.Errorf("target is required for channel %s", ch)
	}
	switch ch {
	case ChannelEmail:
		if !emailPattern.MatchString(target) {
			return fmt.Errorf("%q is not a valid email address", target)
		}
	case ChannelWhatsapp:
		if !phonePattern.MatchString(target) {
			return fmt.Errorf("%q is not a valid phone number (10-15 digits, optional +)", target)
		}
	case ChannelWebhook:
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%q is not a valid http(s) URL", target)
		}
	default:
		return fmt.Errorf("unsupported channel %q", string(ch))
	}
	return nil
}
