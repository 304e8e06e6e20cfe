// Package domain – warning kinds and events.
//
// This file defines the WarningKind enumeration and the immutable
// WarningEvent value produced by the condition evaluator. Each kind carries a
// fixed display title and a coarse collapse bucket used to derive the push
// provider's collapse key, so redelivered messages replace rather than stack.
package domain

import (
	"fmt"
	"strconv"
	"time"
)

// WarningKind is a category of alert with its own condition logic, display
// title, and dispatch cadence.
type WarningKind string

// The three warning kinds the backend evaluates.
const (
	// KindFlood fires when an administrator records new flood information.
	KindFlood WarningKind = "banjir"
	// KindWeather fires when the forecast predicts incoming rain today.
	KindWeather WarningKind = "cuaca"
	// KindReportThreshold fires when enough valid citizen flood reports
	// accumulate on the current date.
	KindReportThreshold WarningKind = "laporan"
)

// AllKinds lists every warning kind in a stable order.
func AllKinds() []WarningKind {
	return []WarningKind{KindFlood, KindWeather, KindReportThreshold}
}

// ParseWarningKind maps a wire string to a WarningKind.
func ParseWarningKind(s string) (WarningKind, error) {
	switch WarningKind(s) {
	case KindFlood, KindWeather, KindReportThreshold:
		return WarningKind(s), nil
	}
	return "", fmt.Errorf("unknown warning kind %q", s)
}

// String implements fmt.Stringer.
func (k WarningKind) String() string { return string(k) }

// Title returns the fixed, user-visible display title for the kind. These
// strings are part of the mobile client contract and must not change.
func (k WarningKind) Title() string {
	switch k {
	case KindFlood:
		return "Informasi Banjir Terbaru"
	case KindWeather:
		return "Peringatan Dini Cuaca"
	case KindReportThreshold:
		return "Peringatan Laporan Banjir"
	}
	return string(k)
}

// CollapseBucket returns the width of the coarse time bucket used for the
// push collapse key. Weather warnings collapse per hour (forecasts change
// slowly); the other kinds use a 5-minute bucket so a flapping condition
// within a few minutes replaces the previous tray entry.
func (k WarningKind) CollapseBucket() time.Duration {
	if k == KindWeather {
		return time.Hour
	}
	return 5 * time.Minute
}

// CollapseKey derives the provider collapse key for a dispatch at time t:
// the kind name plus the bucket ordinal since the epoch.
func (k WarningKind) CollapseKey(t time.Time) string {
	bucket := t.Unix() / int64(k.CollapseBucket().Seconds())
	return string(k) + "_" + strconv.FormatInt(bucket, 10)
}

// DedupKey derives the ledger uniqueness key for an entry created at t under
// a minimum re-fire interval: the kind name plus the interval ordinal. Two
// entries of the same kind inside one interval share the key and collide on
// the ledger's unique index.
func (k WarningKind) DedupKey(t time.Time, interval time.Duration) string {
	if interval <= 0 {
		interval = time.Hour
	}
	bucket := t.Unix() / int64(interval.Seconds())
	return string(k) + "_" + strconv.FormatInt(bucket, 10)
}

// WarningEvent is a realized decision to warn. The ledger entry is written
// only after a dispatch attempt is committed to, so "decided to send" and
// "recorded as sent" are the same transition.
type WarningEvent struct {
	Kind      WarningKind
	Title     string
	Body      string
	CreatedAt time.Time
	// Metadata rides along in the push data payload (type, source, area,
	// forecast hour, and similar client hints).
	Metadata map[string]string
}

// NewWarningEvent builds a WarningEvent for kind with the kind's fixed title.
// The metadata map is copied so the event does not alias the caller's map.
func NewWarningEvent(kind WarningKind, body string, at time.Time, metadata map[string]string) WarningEvent {
	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["type"] = string(kind)
	return WarningEvent{
		Kind:      kind,
		Title:     kind.Title(),
		Body:      body,
		CreatedAt: at.UTC(),
		Metadata:  md,
	}
}
