// Package scheduler drives the warning pipeline on fixed intervals. Each
// warning kind gets its own ticker loop and a mutual-exclusion flag: a tick
// (or a manual trigger) that arrives while the previous run of the same kind
// is still in flight is skipped, not queued. Skipping is safe because every
// run re-evaluates current state; a queued backlog would only replay stale
// decisions. A separate long-period loop sweeps the token registry.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/services"
)

// ErrBusy is returned by RunNow when a run of the same kind is in flight.
var ErrBusy = errors.New("a run of this kind is already in flight")

// WarningRunner executes one warning pipeline cycle.
type WarningRunner interface {
	Run(ctx context.Context, kind domain.WarningKind) (services.RunOutcome, error)
}

// TokenSweeper validates the registered token set.
type TokenSweeper interface {
	ValidateAll(ctx context.Context) (valid, invalid []string, err error)
}

// Scheduler owns the periodic evaluation loops and the per-kind
// mutual-exclusion flags shared with the manual trigger endpoint.
type Scheduler struct {
	// Runner executes warning cycles.
	Runner WarningRunner
	// Sweeper runs the periodic token validation; nil disables the sweep.
	Sweeper TokenSweeper

	// Intervals maps each kind to its evaluation period. Kinds without an
	// entry are not scheduled (they remain manually triggerable).
	Intervals map[domain.WarningKind]time.Duration
	// SweepInterval is the token validation period (daily in production).
	SweepInterval time.Duration
	// RunTimeout bounds one cycle end to end, fan-out included.
	RunTimeout time.Duration

	mu      sync.Mutex
	running map[domain.WarningKind]bool
	wg      sync.WaitGroup
}

func (s *Scheduler) runTimeout() time.Duration {
	if s.RunTimeout > 0 {
		return s.RunTimeout
	}
	return 2 * time.Minute
}

// tryAcquire flips the kind's flag to running. It reports false when a run
// is already in flight.
func (s *Scheduler) tryAcquire(kind domain.WarningKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		s.running = make(map[domain.WarningKind]bool)
	}
	if s.running[kind] {
		return false
	}
	s.running[kind] = true
	return true
}

func (s *Scheduler) release(kind domain.WarningKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[kind] = false
}

// Running reports whether a run of kind is currently in flight.
func (s *Scheduler) Running(kind domain.WarningKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[kind]
}

// RunNow executes one cycle for kind immediately, sharing the
// mutual-exclusion flag with the ticker loops. ErrBusy means a run is
// already in flight and the caller should not wait for it.
func (s *Scheduler) RunNow(ctx context.Context, kind domain.WarningKind) (services.RunOutcome, error) {
	if !s.tryAcquire(kind) {
		return services.RunOutcome{}, ErrBusy
	}
	defer s.release(kind)

	ctx, cancel := context.WithTimeout(ctx, s.runTimeout())
	defer cancel()
	return s.Runner.Run(ctx, kind)
}

// Start launches the ticker loops. They stop when ctx is canceled; Wait
// blocks until every loop has exited.
func (s *Scheduler) Start(ctx context.Context) {
	for kind, every := range s.Intervals {
		if every <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, kind, every)
	}
	if s.Sweeper != nil && s.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	}
}

// Wait blocks until all loops started by Start have exited.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, kind domain.WarningKind, every time.Duration) {
	defer s.wg.Done()

	t := time.NewTicker(every)
	defer t.Stop()

	log.Info().Str("kind", kind.String()).Dur("every", every).Msg("warning loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("kind", kind.String()).Msg("warning loop stopped")
			return
		case <-t.C:
			s.tick(ctx, kind)
		}
	}
}

// tick runs one cycle, skipping when the previous run is still in flight.
func (s *Scheduler) tick(ctx context.Context, kind domain.WarningKind) {
	out, err := s.RunNow(ctx, kind)
	switch {
	case errors.Is(err, ErrBusy):
		log.Warn().Str("kind", kind.String()).Msg("previous run still in flight; tick skipped")
	case err != nil:
		log.Error().Err(err).Str("kind", kind.String()).Msg("warning cycle failed")
	default:
		log.Debug().Str("kind", kind.String()).Str("status", out.Status).Msg("warning cycle finished")
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	t := time.NewTicker(s.SweepInterval)
	defer t.Stop()

	log.Info().Dur("every", s.SweepInterval).Msg("token sweep loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("token sweep loop stopped")
			return
		case <-t.C:
			sweepCtx, cancel := context.WithTimeout(ctx, s.runTimeout())
			valid, invalid, err := s.Sweeper.ValidateAll(sweepCtx)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("token sweep failed")
				continue
			}
			log.Info().Int("valid", len(valid)).Int("invalid", len(invalid)).Msg("token sweep finished")
		}
	}
}
