// Package services – FanoutDispatcher
//
// This file implements delivery of one warning event across the two channels:
// a push topic broadcast plus a batched per-token fan-out, and a sequential
// WhatsApp broadcast. The two channels are independent best-effort paths; a
// total failure of both is logged, never raised. Within one run the topic
// send always precedes the individual fan-out, and per-token sends are
// batched with a small stagger so the provider is never hit with an unbounded
// burst.
//
// Partial-failure bookkeeping: every per-token failure is classified. A
// "recipient permanently invalid" error puts the token on the invalidation
// set, which is handed to the registry in ONE bulk delete after all batches
// complete; transient errors are counted and the token retained (no retry
// within the run).
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/push"
	"github.com/sigab-app/sigab-backend/internal/repo"
	"github.com/sigab-app/sigab-backend/internal/whatsapp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DispatchResult aggregates the outcome of one fan-out run. Counts are
// best-effort bookkeeping for logs and the manual trigger endpoint; they
// never gate control flow.
type DispatchResult struct {
	TopicOK        bool     `json:"topic_ok"`
	Sent           int      `json:"sent"`
	Failed         int      `json:"failed"`
	Invalidated    []string `json:"invalidated,omitempty"`
	WhatsAppSent   int      `json:"whatsapp_sent"`
	WhatsAppFailed int      `json:"whatsapp_failed"`
}

// FanoutDispatcher delivers warning events to all recipients.
type FanoutDispatcher struct {
	// DB is used to read the WhatsApp recipient list.
	DB *gorm.DB
	// Tokens supplies the token snapshot and receives the invalidation set.
	Tokens *TokenService
	// Push is the outbound push provider.
	Push push.Provider
	// WhatsApp is the outbound WhatsApp transport; nil disables the channel.
	WhatsApp whatsapp.Sender

	// Topic is the broadcast topic for the single logical topic send.
	Topic string
	// BatchSize caps concurrent outbound sends per batch (default 10).
	BatchSize int
	// SendStagger spaces out sends inside a batch.
	SendStagger time.Duration
	// BatchDelay separates consecutive batches.
	BatchDelay time.Duration
	// PushTTL keeps messages buffered for offline devices.
	PushTTL time.Duration

	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Sleep is the delay function; time.Sleep when nil (tests replace it).
	Sleep func(time.Duration)
}

func (d *FanoutDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *FanoutDispatcher) sleep(dur time.Duration) {
	if dur <= 0 {
		return
	}
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

func (d *FanoutDispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return 10
}

// message renders the push payload for ev: collapse key from the kind's
// coarse time bucket, multi-day TTL for offline devices.
func (d *FanoutDispatcher) message(ev domain.WarningEvent) push.Message {
	ttl := d.PushTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return push.Message{
		Title:       ev.Title,
		Body:        ev.Body,
		Data:        ev.Metadata,
		CollapseKey: ev.Kind.CollapseKey(d.now()),
		TTL:         ttl,
	}
}

// Dispatch delivers ev across both channels and returns aggregate counts.
// It never raises for partial failure; even a token snapshot failure degrades
// to a push-less run so the WhatsApp channel still gets its chance.
func (d *FanoutDispatcher) Dispatch(ctx context.Context, ev domain.WarningEvent) DispatchResult {
	tr := otel.Tracer("services/FanoutDispatcher")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.String("warning.kind", ev.Kind.String())),
	)
	defer span.End()

	var res DispatchResult
	msg := d.message(ev)

	// 1) Topic broadcast. Independent of the individual path; failure is
	// logged and the run continues.
	if err := d.Push.SendToTopic(ctx, d.Topic, msg); err != nil {
		log.Error().Err(err).Str("topic", d.Topic).Str("kind", ev.Kind.String()).
			Msg("topic broadcast failed")
	} else {
		res.TopicOK = true
	}

	// 2) Individual fan-out over a snapshot of the registered tokens.
	tokens, err := d.Tokens.AllTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("token snapshot failed; skipping individual fan-out")
	} else {
		res.Sent, res.Failed, res.Invalidated = d.fanout(ctx, tokens, msg)

		// One bulk invalidation for the whole run.
		if err := d.Tokens.Invalidate(ctx, res.Invalidated); err != nil {
			log.Error().Err(err).Int("tokens", len(res.Invalidated)).
				Msg("failed to invalidate unregistered tokens")
		}
	}

	// 3) WhatsApp broadcast, sequential and independent.
	res.WhatsAppSent, res.WhatsAppFailed = d.broadcastWhatsApp(ctx, ev.Body)

	if !res.TopicOK && res.Sent == 0 && res.WhatsAppSent == 0 {
		log.Error().Str("kind", ev.Kind.String()).Msg("warning reached no recipients on any channel")
	}
	span.SetAttributes(
		attribute.Int("push.sent", res.Sent),
		attribute.Int("push.failed", res.Failed),
		attribute.Int("push.invalidated", len(res.Invalidated)),
		attribute.Int("whatsapp.sent", res.WhatsAppSent),
	)
	return res
}

// fanout sends msg to every token in fixed-size batches. Sends inside a batch
// run concurrently with a per-send stagger; the next batch starts only after
// the previous one fully settles, separated by BatchDelay.
func (d *FanoutDispatcher) fanout(ctx context.Context, tokens []string, msg push.Message) (sent, failed int, invalid []string) {
	size := d.batchSize()
	var mu sync.Mutex

	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		var wg sync.WaitGroup
		for i, tok := range batch {
			wg.Add(1)
			go func(i int, tok string) {
				defer wg.Done()
				// Stagger sends so the provider sees a ramp, not a spike.
				d.sleep(time.Duration(i) * d.SendStagger)

				err := d.Push.SendToToken(ctx, tok, msg)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					sent++
					pushSends.WithLabelValues("sent").Inc()
				case push.IsUnregistered(err):
					invalid = append(invalid, tok)
					pushSends.WithLabelValues("unregistered").Inc()
				default:
					failed++
					pushSends.WithLabelValues("failed").Inc()
					log.Warn().Err(err).Msg("push send failed; token retained")
				}
			}(i, tok)
		}
		wg.Wait()

		if end < len(tokens) {
			d.sleep(d.BatchDelay)
		}
	}
	return sent, failed, invalid
}

// broadcastWhatsApp sends body to every registered WhatsApp number,
// sequentially. Numbers are normalized to international form; each failure is
// logged and skipped. No retry, no persistent bad-number bookkeeping.
func (d *FanoutDispatcher) broadcastWhatsApp(ctx context.Context, body string) (sent, failed int) {
	if d.WhatsApp == nil {
		return 0, 0
	}
	numbers, err := repo.ListWhatsAppNumbers(ctx, d.DB)
	if err != nil {
		log.Error().Err(err).Msg("whatsapp recipient query failed")
		return 0, 0
	}
	for _, raw := range numbers {
		if ctx.Err() != nil {
			return sent, failed
		}
		to := whatsapp.NormalizeInternational(raw)
		if to == "" {
			continue
		}
		if err := d.WhatsApp.SendMessage(ctx, to, body); err != nil {
			failed++
			whatsappSends.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("to", to).Msg("whatsapp send failed")
			continue
		}
		sent++
		whatsappSends.WithLabelValues("sent").Inc()
	}
	return sent, failed
}
