// Package push abstracts the mobile push provider behind a small capability
// interface so the dispatch core can be exercised against stubs in tests and
// against Firebase Cloud Messaging in production.
//
// Error contract: implementations must return ErrUnregistered (possibly
// wrapped) when the provider reports the recipient token as permanently
// invalid. Every other failure is treated as transient by callers: the send
// is counted as failed but the token is retained.
package push

import (
	"context"
	"errors"
	"time"
)

// ErrUnregistered marks a token the provider no longer recognizes. The token
// registry deletes such tokens after the fan-out completes.
var ErrUnregistered = errors.New("push: token unregistered")

// IsUnregistered reports whether err indicates a permanently invalid token.
func IsUnregistered(err error) bool { return errors.Is(err, ErrUnregistered) }

// Message is one push notification payload.
type Message struct {
	Title string
	Body  string
	// Data is the custom key/value payload delivered alongside the
	// notification (client hints such as type and source).
	Data map[string]string
	// CollapseKey groups redeliveries of the same coarse event so the
	// device's tray shows the most recent notification instead of stacking
	// duplicates.
	CollapseKey string
	// TTL keeps the message buffered for offline devices; they receive the
	// warning on reconnect instead of losing it silently.
	TTL time.Duration
	// DryRun validates the recipient without delivering anything. Used by
	// the token validation sweep.
	DryRun bool
}

// Provider is the outbound push capability consumed by the dispatch core.
// Implementations must be safe for concurrent use.
type Provider interface {
	// SendToToken delivers msg to a single device token.
	SendToToken(ctx context.Context, token string, msg Message) error
	// SendToTopic broadcasts msg to every device subscribed to topic.
	SendToTopic(ctx context.Context, topic string, msg Message) error
	// SubscribeToTopic subscribes a device token to a topic. Best-effort:
	// registration does not depend on its success.
	SubscribeToTopic(ctx context.Context, token, topic string) error
}
