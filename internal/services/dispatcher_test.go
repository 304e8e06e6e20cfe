package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/push"
)

func TestDispatchClassifiesPerTokenFailures(t *testing.T) {
	f := newPipeline(t)
	for i := 0; i < 25; i++ {
		f.seedToken(t, fmt.Sprintf("tok-%02d", i))
	}
	f.provider.tokenErrs["tok-03"] = fmt.Errorf("send: %w", push.ErrUnregistered)
	f.provider.tokenErrs["tok-17"] = errors.New("503 unavailable")

	ev := domain.NewWarningEvent(domain.KindFlood, "pesan", f.now, nil)
	res := f.svc.Dispatcher.Dispatch(context.Background(), ev)

	if res.Sent != 23 {
		t.Fatalf("sent = %d, want 23", res.Sent)
	}
	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1 transient failure", res.Failed)
	}
	if len(res.Invalidated) != 1 || res.Invalidated[0] != "tok-03" {
		t.Fatalf("invalidated = %v, want tok-03 only", res.Invalidated)
	}

	// The unregistered token is gone; the transiently failing one stays.
	var remaining int64
	if err := f.db.Model(&domain.DeviceToken{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if remaining != 24 {
		t.Fatalf("remaining tokens = %d, want 24", remaining)
	}
	var gone int64
	if err := f.db.Model(&domain.DeviceToken{}).Where("token = ?", "tok-03").Count(&gone).Error; err != nil {
		t.Fatalf("count removed token: %v", err)
	}
	if gone != 0 {
		t.Fatalf("unregistered token still present")
	}
}

func TestDispatchTopicBeforeTokens(t *testing.T) {
	f := newPipeline(t)
	f.seedToken(t, "tok-a")
	f.seedToken(t, "tok-b")

	ev := domain.NewWarningEvent(domain.KindWeather, "pesan", f.now, nil)
	f.svc.Dispatcher.Dispatch(context.Background(), ev)

	ops := f.provider.ops
	if len(ops) != 3 {
		t.Fatalf("ops = %v, want topic plus two token sends", ops)
	}
	if ops[0] != "topic:peringatan" {
		t.Fatalf("first op = %q, want the topic broadcast", ops[0])
	}
}

func TestDispatchMessagePayload(t *testing.T) {
	f := newPipeline(t)
	f.seedToken(t, "tok-a")

	ev := domain.NewWarningEvent(domain.KindWeather, "pesan", f.now, map[string]string{"jam": "09.45"})
	f.svc.Dispatcher.Dispatch(context.Background(), ev)

	msg, ok := f.provider.tokenMsgs["tok-a"]
	if !ok {
		t.Fatalf("no send recorded for tok-a")
	}
	if msg.Title != "Peringatan Dini Cuaca" || msg.Body != "pesan" {
		t.Fatalf("msg = %+v", msg)
	}
	if msg.Data["jam"] != "09.45" || msg.Data["type"] != "cuaca" {
		t.Fatalf("data = %v", msg.Data)
	}
	if msg.CollapseKey != domain.KindWeather.CollapseKey(f.now) {
		t.Fatalf("collapse key = %q", msg.CollapseKey)
	}
	if msg.TTL != 7*24*time.Hour {
		t.Fatalf("ttl = %v, want the 7-day default", msg.TTL)
	}
	if msg.DryRun {
		t.Fatalf("live send flagged as dry run")
	}
}

func TestDispatchWithoutRecipients(t *testing.T) {
	f := newPipeline(t)

	ev := domain.NewWarningEvent(domain.KindFlood, "pesan", f.now, nil)
	res := f.svc.Dispatcher.Dispatch(context.Background(), ev)

	// The topic broadcast still goes out; everything else is zero.
	if !res.TopicOK || res.Sent != 0 || res.Failed != 0 || res.WhatsAppSent != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatchTokenSnapshotFailureKeepsWhatsApp(t *testing.T) {
	// Migrate everything except the token table so the snapshot query fails.
	db := newServiceDB(t, &domain.Notification{}, &domain.AppUser{})
	provider := newStubProvider()
	sender := &stubSender{}
	u := domain.AppUser{ID: "u1", WhatsAppNumber: "6281234567890"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	d := &FanoutDispatcher{
		DB:       db,
		Tokens:   &TokenService{DB: db, Push: provider},
		Push:     provider,
		WhatsApp: sender,
		Topic:    "peringatan",
		Sleep:    func(time.Duration) {},
	}
	ev := domain.NewWarningEvent(domain.KindFlood, "pesan", time.Now(), nil)
	res := d.Dispatch(context.Background(), ev)

	if res.Sent != 0 {
		t.Fatalf("sent = %d, want 0 with no snapshot", res.Sent)
	}
	if res.WhatsAppSent != 1 {
		t.Fatalf("whatsapp sent = %d, want the channel to run anyway", res.WhatsAppSent)
	}
	if got := sender.sent; len(got) != 1 || got[0] != "+6281234567890" {
		t.Fatalf("whatsapp recipients = %v", got)
	}
}

func TestDispatchWhatsAppNormalizationAndFailures(t *testing.T) {
	f := newPipeline(t)
	f.seedUser(t, "u1", "081111111111")
	f.seedUser(t, "u2", "") // no number, skipped by the query
	f.seedUser(t, "u3", "+62822222222")
	f.sender.fails = map[string]error{"+62822222222": errors.New("twilio 429")}

	ev := domain.NewWarningEvent(domain.KindFlood, "pesan", f.now, nil)
	res := f.svc.Dispatcher.Dispatch(context.Background(), ev)

	if res.WhatsAppSent != 1 || res.WhatsAppFailed != 1 {
		t.Fatalf("whatsapp sent/failed = %d/%d, want 1/1", res.WhatsAppSent, res.WhatsAppFailed)
	}
	if got := f.sender.sent; len(got) != 1 || got[0] != "+6281111111111" {
		t.Fatalf("whatsapp recipients = %v", got)
	}
}

func TestDispatchNilWhatsAppDisablesChannel(t *testing.T) {
	f := newPipeline(t)
	f.seedUser(t, "u1", "081111111111")
	f.svc.Dispatcher.WhatsApp = nil

	ev := domain.NewWarningEvent(domain.KindFlood, "pesan", f.now, nil)
	res := f.svc.Dispatcher.Dispatch(context.Background(), ev)

	if res.WhatsAppSent != 0 || res.WhatsAppFailed != 0 {
		t.Fatalf("result = %+v, want whatsapp disabled", res)
	}
}
