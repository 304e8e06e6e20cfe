// Package whatsapp abstracts the WhatsApp message transport behind a small
// capability interface and provides the phone-number normalization the
// broadcast path applies before every send. The concrete transport is Twilio;
// tests use stub senders.
package whatsapp

import (
	"context"
	"strings"
)

// Sender is the outbound WhatsApp capability consumed by the dispatch core.
// Implementations must be safe for concurrent use.
type Sender interface {
	// SendMessage delivers body to an international-format number
	// (e.g. "+62812…"). The caller is responsible for normalization.
	SendMessage(ctx context.Context, toNumber, body string) error
}

// countryPrefix is the international prefix applied to national numbers.
// Recipients are Indonesian mobile subscribers.
const countryPrefix = "+62"

// NormalizeInternational rewrites a locally formatted phone number to
// international form:
//
//	"0812 3456-7890" -> "+6281234567890"
//	"6281234567890"  -> "+6281234567890"
//	"+62812…"        -> unchanged
//
// Numbers without any recognizable prefix are assumed national and get the
// country prefix prepended. An empty input normalizes to "".
func NormalizeInternational(number string) string {
	// Keep digits only; this also drops an existing "+".
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(digits, "62"):
		return "+" + digits
	case strings.HasPrefix(digits, "0"):
		return countryPrefix + digits[1:]
	default:
		return countryPrefix + digits
	}
}
