// Package services – WarningService
//
// This file wires the pipeline together: evaluate the condition, consult the
// dedup guard, fan out, then commit the ledger entry. The commit is strictly
// last: a ledger row asserts "recipients were notified", so it must only
// exist after the fan-out ran. A commit failure after a successful fan-out is
// an audit-trail gap that gets logged loudly; it is never repaired by
// re-dispatching.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Run outcome statuses.
const (
	StatusDispatched  = "dispatched"
	StatusNoCondition = "no_condition"
	StatusSuppressed  = "suppressed"
)

// RunOutcome describes one pipeline run for logs and the manual trigger
// endpoint.
type RunOutcome struct {
	Status string               `json:"status"`
	Event  *domain.WarningEvent `json:"event,omitempty"`
	Result *DispatchResult      `json:"result,omitempty"`
	Entry  *domain.Notification `json:"entry,omitempty"`
}

// WarningService runs the full evaluate/guard/dispatch/commit pipeline.
type WarningService struct {
	DB         *gorm.DB
	Evaluator  *ConditionEvaluator
	Guard      *DedupGuard
	Dispatcher *FanoutDispatcher
}

// Run executes one pipeline cycle for kind. It returns the outcome; an error
// means the cycle was abandoned before any send happened (evaluation or guard
// failure), so the caller may simply wait for the next tick.
func (s *WarningService) Run(ctx context.Context, kind domain.WarningKind) (RunOutcome, error) {
	tr := otel.Tracer("services/WarningService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(attribute.String("warning.kind", kind.String())),
	)
	defer span.End()

	should, ev, err := s.Evaluator.Evaluate(ctx, kind)
	if err != nil {
		warningRuns.WithLabelValues(kind.String(), "error").Inc()
		log.Error().Err(err).Str("kind", kind.String()).Msg("condition evaluation failed")
		return RunOutcome{}, err
	}
	if !should {
		warningRuns.WithLabelValues(kind.String(), StatusNoCondition).Inc()
		span.SetAttributes(attribute.String("warning.outcome", StatusNoCondition))
		return RunOutcome{Status: StatusNoCondition}, nil
	}

	ok, err := s.Guard.MayDispatch(ctx, kind)
	if err != nil {
		warningRuns.WithLabelValues(kind.String(), "error").Inc()
		log.Error().Err(err).Str("kind", kind.String()).Msg("dedup check failed; suppressing dispatch")
		return RunOutcome{}, err
	}
	if !ok {
		warningRuns.WithLabelValues(kind.String(), StatusSuppressed).Inc()
		span.SetAttributes(attribute.String("warning.outcome", StatusSuppressed))
		log.Info().Str("kind", kind.String()).Msg("warning suppressed; already sent within the interval")
		return RunOutcome{Status: StatusSuppressed, Event: &ev}, nil
	}

	// Clients collapse a re-delivered warning on its window key, so it
	// rides in the data payload next to the evaluator's hints.
	ev.Metadata["dedup_key"] = kind.DedupKey(ev.CreatedAt, s.Guard.Interval(kind))

	res := s.Dispatcher.Dispatch(ctx, ev)

	outcome := RunOutcome{Status: StatusDispatched, Event: &ev, Result: &res}
	entry, err := s.Guard.Commit(ctx, ev)
	switch {
	case errors.Is(err, ErrAlreadySent):
		// Another run won the bucket between our jittered check and the
		// insert. Recipients may have been notified twice; the ledger
		// stays single-entry, which is the stronger guarantee.
		log.Warn().Str("kind", kind.String()).Msg("concurrent run already committed this warning window")
	case err != nil:
		// Fan-out succeeded but the ledger write did not. The audit trail
		// is now missing a send and the next cycle may fire early.
		log.Error().Err(err).Str("kind", kind.String()).
			Msg("warning dispatched but ledger commit failed")
	default:
		outcome.Entry = entry
	}

	warningRuns.WithLabelValues(kind.String(), StatusDispatched).Inc()
	span.SetAttributes(attribute.String("warning.outcome", StatusDispatched))
	log.Info().
		Str("kind", kind.String()).
		Bool("topic_ok", res.TopicOK).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("invalidated", len(res.Invalidated)).
		Int("whatsapp_sent", res.WhatsAppSent).
		Msg("warning dispatched")
	return outcome, nil
}

// CheckCondition evaluates kind without dispatching. Used by the on-demand
// check endpoints; shouldNotify=true does not imply a send would pass the
// dedup guard.
func (s *WarningService) CheckCondition(ctx context.Context, kind domain.WarningKind) (bool, string, error) {
	should, ev, err := s.Evaluator.Evaluate(ctx, kind)
	if err != nil || !should {
		return false, "", err
	}
	return true, ev.Body, nil
}

// List returns all ledger entries, newest first.
func (s *WarningService) List(ctx context.Context) ([]domain.Notification, error) {
	return repo.ListNotifications(ctx, s.DB)
}

// History returns the ledger entries created since the given instant, newest
// first, capped at the history limit. Clients pass their install time so a
// fresh install does not replay months of old warnings.
func (s *WarningService) History(ctx context.Context, since time.Time) ([]domain.Notification, error) {
	return repo.ListNotificationsSince(ctx, s.DB, since)
}
