// Package services – DedupGuard
//
// This file implements the deduplication policy: a candidate warning for a
// given kind may be dispatched only if no ledger entry of that kind exists
// within the kind's minimum re-fire interval. The in-process check runs
// twice, with a bounded random jitter between the passes, to shrink the race
// window when two trigger paths overlap despite the scheduler's
// mutual-exclusion flag (e.g. a restart mid-run). The authoritative guard is
// Commit's insert-if-absent against the ledger's unique dedup index; the
// checks here are a latency and cost optimization, not the sole correctness
// mechanism.
//
// Failure policy: when the store is unreachable during a check, the guard
// answers "do not dispatch". Absence of proof of a prior send is not proof of
// absence, and the policy favors under-sending over duplicate storms.
package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DedupGuard decides whether a candidate warning may be dispatched right now,
// and owns the ledger commit that makes the decision durable.
type DedupGuard struct {
	// DB is the GORM handle for ledger queries and the conditional insert.
	DB *gorm.DB
	// Intervals maps each kind to its minimum re-fire interval.
	Intervals map[domain.WarningKind]time.Duration
	// JitterMin/JitterMax bound the delay between the two checks.
	JitterMin time.Duration
	JitterMax time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Sleep is the delay function; time.Sleep when nil (tests replace it).
	Sleep func(time.Duration)
}

func (g *DedupGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *DedupGuard) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if g.Sleep != nil {
		g.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Interval returns the minimum re-fire interval for kind, defaulting to one
// hour when unconfigured.
func (g *DedupGuard) Interval(kind domain.WarningKind) time.Duration {
	if d, ok := g.Intervals[kind]; ok && d > 0 {
		return d
	}
	return time.Hour
}

// jitter picks a random delay in [JitterMin, JitterMax].
func (g *DedupGuard) jitter() time.Duration {
	lo, hi := g.JitterMin, g.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// MayDispatch reports whether a warning of the given kind may be dispatched
// now. It checks the ledger window, waits a bounded random jitter, and checks
// again. A store failure answers false together with the error.
func (g *DedupGuard) MayDispatch(ctx context.Context, kind domain.WarningKind) (bool, error) {
	tr := otel.Tracer("services/DedupGuard")
	ctx, span := tr.Start(ctx, "MayDispatch",
		trace.WithAttributes(attribute.String("warning.kind", kind.String())),
	)
	defer span.End()

	interval := g.Interval(kind)

	// First pass: window existence plus the per-kind rate ceiling. The
	// ceiling counts entries regardless of title or body, so a flapping
	// condition cannot burst within one interval.
	cutoff := g.now().Add(-interval)
	recent, err := repo.CountNotificationsSince(ctx, g.DB, kind, cutoff)
	if err != nil {
		return false, err
	}
	if recent >= 1 {
		return false, nil
	}

	// Jitter, then re-check immediately before the caller proceeds toward
	// the irrevocable ledger insert.
	g.sleep(g.jitter())

	has, err := repo.HasNotificationSince(ctx, g.DB, kind, g.now().Add(-interval))
	if err != nil {
		return false, err
	}
	return !has, nil
}

// Commit durably records the dispatched warning in the ledger via the
// conditional insert. ErrAlreadySent is returned when another run won the
// bucket; any other error is a real store failure (an audit-trail gap the
// caller logs but must not repair by re-dispatching).
func (g *DedupGuard) Commit(ctx context.Context, ev domain.WarningEvent) (*domain.Notification, error) {
	rec, err := repo.CreateNotification(ctx, g.DB, ev.Kind, ev.Title, ev.Body, g.now(), g.Interval(ev.Kind))
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrAlreadySent
	}
	return rec, err
}
