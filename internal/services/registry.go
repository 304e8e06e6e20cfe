// Package services – TokenService
//
// This file implements the token registry: the single owner of the device
// push-token set. Registration is an idempotent upsert; topic subscription is
// best-effort and never blocks a registration from succeeding; invalidation
// is one bulk delete per fan-out run; and a periodic sweep probes every token
// with a dry-run send to evict the dead ones.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/push"
	"github.com/sigab-app/sigab-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TokenService manages the registered device push-token set.
type TokenService struct {
	// DB is the GORM handle backing the token table.
	DB *gorm.DB
	// Push is the provider used for topic subscription and probe sends.
	Push push.Provider
	// Topic is the broadcast topic new tokens subscribe to.
	Topic string
}

// TokenStats summarizes the registry for the stats endpoint.
type TokenStats struct {
	Total int64 `json:"total"`
}

// Register stores a device token. Duplicate registration is a no-op, never an
// error. Topic subscription is attempted afterwards; its failure is logged
// and swallowed since the registration has already persisted.
func (s *TokenService) Register(ctx context.Context, token string) error {
	tr := otel.Tracer("services/TokenService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	if err := repo.UpsertDeviceToken(ctx, s.DB, token); err != nil {
		return err
	}

	if s.Push != nil && s.Topic != "" {
		if err := s.Push.SubscribeToTopic(ctx, token, s.Topic); err != nil {
			log.Warn().Err(err).Str("topic", s.Topic).Msg("token registered but topic subscribe failed")
		}
	}
	return nil
}

// AllTokens returns a point-in-time snapshot of the registered tokens.
// Callers must not assume the snapshot stays valid during a long fan-out;
// concurrently deleted tokens simply fail on send and get invalidated.
func (s *TokenService) AllTokens(ctx context.Context) ([]string, error) {
	return repo.ListDeviceTokens(ctx, s.DB)
}

// Invalidate removes the given tokens in one bulk operation.
func (s *TokenService) Invalidate(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	removed, err := repo.DeleteDeviceTokens(ctx, s.DB, tokens)
	if err != nil {
		return err
	}
	tokensInvalidated.Add(float64(removed))
	log.Info().Int64("removed", removed).Msg("invalidated device tokens")
	return nil
}

// Stats returns registry totals.
func (s *TokenService) Stats(ctx context.Context) (TokenStats, error) {
	total, err := repo.CountDeviceTokens(ctx, s.DB)
	if err != nil {
		return TokenStats{}, err
	}
	return TokenStats{Total: total}, nil
}

// ValidateAll sweeps every registered token with a dry-run probe send,
// partitions the results, and removes the invalid set. It runs on a long
// period (daily), independent of warning dispatch. Transient probe failures
// leave the token in place.
func (s *TokenService) ValidateAll(ctx context.Context) (valid, invalid []string, err error) {
	tr := otel.Tracer("services/TokenService")
	ctx, span := tr.Start(ctx, "ValidateAll")
	defer span.End()

	tokens, err := s.AllTokens(ctx)
	if err != nil {
		return nil, nil, err
	}

	probe := push.Message{
		Title:  "ping",
		Body:   "ping",
		DryRun: true,
	}
	for _, tok := range tokens {
		if ctx.Err() != nil {
			return valid, invalid, ctx.Err()
		}
		sendErr := s.Push.SendToToken(ctx, tok, probe)
		switch {
		case sendErr == nil:
			valid = append(valid, tok)
		case push.IsUnregistered(sendErr):
			invalid = append(invalid, tok)
		default:
			// Transient: keep the token, re-examined on the next sweep.
			valid = append(valid, tok)
		}
	}
	span.SetAttributes(
		attribute.Int("tokens.valid", len(valid)),
		attribute.Int("tokens.invalid", len(invalid)),
	)

	if err := s.Invalidate(ctx, invalid); err != nil {
		return valid, invalid, err
	}
	return valid, invalid, nil
}
