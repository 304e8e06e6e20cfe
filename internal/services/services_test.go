package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/push"
	"github.com/sigab-app/sigab-backend/internal/weather"
)

func newServiceDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) == 0 {
		migrate = []any{
			&domain.Notification{},
			&domain.DeviceToken{},
			&domain.Report{},
			&domain.FloodInfo{},
			&domain.AppUser{},
		}
	}
	if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stubProvider is an in-memory push.Provider. Per-token errors are
// configurable; every call is recorded in order.
type stubProvider struct {
	mu sync.Mutex

	tokenErrs    map[string]error
	topicErr     error
	subscribeErr error

	ops        []string // "topic:<topic>" / "token:<token>" / "subscribe:<token>"
	tokenMsgs  map[string]push.Message
	topicMsgs  []push.Message
	subscribed []string
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		tokenErrs: map[string]error{},
		tokenMsgs: map[string]push.Message{},
	}
}

func (p *stubProvider) SendToToken(_ context.Context, token string, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "token:"+token)
	p.tokenMsgs[token] = msg
	return p.tokenErrs[token]
}

func (p *stubProvider) SendToTopic(_ context.Context, topic string, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "topic:"+topic)
	p.topicMsgs = append(p.topicMsgs, msg)
	return p.topicErr
}

func (p *stubProvider) SubscribeToTopic(_ context.Context, token, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "subscribe:"+token)
	p.subscribed = append(p.subscribed, token)
	return p.subscribeErr
}

func (p *stubProvider) sentTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for tok := range p.tokenMsgs {
		out = append(out, tok)
	}
	return out
}

// stubSender is an in-memory whatsapp.Sender.
type stubSender struct {
	mu    sync.Mutex
	sent  []string // recipient numbers, in order
	fails map[string]error
}

func (s *stubSender) SendMessage(_ context.Context, toNumber, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[toNumber]; err != nil {
		return err
	}
	s.sent = append(s.sent, toNumber)
	return nil
}

// stubForecast is a canned weather.ForecastSource.
type stubForecast struct {
	forecast *weather.Forecast
	err      error
}

func (s *stubForecast) GetForecast(context.Context, string) (*weather.Forecast, error) {
	return s.forecast, s.err
}

func hourlyAt(at time.Time, desc string) weather.Hourly {
	return weather.Hourly{
		WeatherDesc:   desc,
		LocalDatetime: at.In(weather.WIB).Format("2006-01-02 15:04:05"),
	}
}

func forecastOf(records ...weather.Hourly) *weather.Forecast {
	return &weather.Forecast{
		Data: []weather.Location{{Cuaca: [][]weather.Hourly{records}}},
	}
}

// pipelineFixture wires a full WarningService over a fresh database with
// instant clocks and no real sleeping.
type pipelineFixture struct {
	db       *gorm.DB
	provider *stubProvider
	sender   *stubSender
	forecast *stubForecast
	svc      *WarningService
	now      time.Time
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	db := newServiceDB(t)
	provider := newStubProvider()
	sender := &stubSender{}
	forecast := &stubForecast{forecast: forecastOf()}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, weather.WIB)
	clock := func() time.Time { return now }
	noSleep := func(time.Duration) {}

	tokens := &TokenService{DB: db, Push: provider, Topic: "peringatan"}
	svc := &WarningService{
		DB: db,
		Evaluator: &ConditionEvaluator{
			DB:              db,
			Forecast:        forecast,
			LocationCode:    "32.04.12.2006",
			ReportThreshold: 3,
			WeatherGuard:    30 * time.Minute,
			Now:             clock,
		},
		Guard: &DedupGuard{
			DB: db,
			Intervals: map[domain.WarningKind]time.Duration{
				domain.KindFlood:           24 * time.Hour,
				domain.KindWeather:         time.Hour,
				domain.KindReportThreshold: time.Hour,
			},
			Now:   clock,
			Sleep: noSleep,
		},
		Dispatcher: &FanoutDispatcher{
			DB:       db,
			Tokens:   tokens,
			Push:     provider,
			WhatsApp: sender,
			Topic:    "peringatan",
			Now:      clock,
			Sleep:    noSleep,
		},
	}
	return &pipelineFixture{db: db, provider: provider, sender: sender, forecast: forecast, svc: svc, now: now}
}

func (f *pipelineFixture) seedFlood(t *testing.T, area string, at time.Time) {
	t.Helper()
	fi := domain.FloodInfo{ID: fmt.Sprintf("flood-%d", at.UnixNano()), Area: area, OccurredAt: at}
	if err := f.db.Create(&fi).Error; err != nil {
		t.Fatalf("seed flood info: %v", err)
	}
}

func (f *pipelineFixture) seedReport(t *testing.T, id, reportType, status string, at time.Time) {
	t.Helper()
	r := domain.Report{ID: id, ReportType: reportType, Status: status, ReportedAt: at}
	if err := f.db.Create(&r).Error; err != nil {
		t.Fatalf("seed report: %v", err)
	}
}

func (f *pipelineFixture) seedToken(t *testing.T, token string) {
	t.Helper()
	rec := domain.DeviceToken{Token: token, CreatedAt: f.now}
	if err := f.db.Create(&rec).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func (f *pipelineFixture) seedUser(t *testing.T, id, number string) {
	t.Helper()
	u := domain.AppUser{ID: id, WhatsAppNumber: number, CreatedAt: f.now}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func (f *pipelineFixture) ledgerCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&domain.Notification{}).Count(&n).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return n
}
