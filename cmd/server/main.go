// Command server runs the flood-preparedness notification backend: the HTTP
// API, the scheduled warning loops, and the token validation sweep.
//
// Startup order matters: configuration, then logging, then tracing, then
// storage, then outbound providers, then the scheduler, and the HTTP server
// last. Shutdown walks the same chain in reverse on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sigab-app/sigab-backend/internal/config"
	"github.com/sigab-app/sigab-backend/internal/domain"
	httpapi "github.com/sigab-app/sigab-backend/internal/http"
	"github.com/sigab-app/sigab-backend/internal/http/handlers"
	"github.com/sigab-app/sigab-backend/internal/observability"
	"github.com/sigab-app/sigab-backend/internal/push"
	"github.com/sigab-app/sigab-backend/internal/repo"
	"github.com/sigab-app/sigab-backend/internal/scheduler"
	"github.com/sigab-app/sigab-backend/internal/services"
	"github.com/sigab-app/sigab-backend/internal/sysutil"
	"github.com/sigab-app/sigab-backend/internal/weather"
	"github.com/sigab-app/sigab-backend/internal/whatsapp"
)

// version is stamped into traces; override with -ldflags "-X main.version=…".
var version = "dev"

func main() {
	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	// Outbound providers.
	creds, err := fcmCredentials(cfg.FCM)
	if err != nil {
		log.Fatal().Err(err).Msg("read FCM credentials failed")
	}
	fcm, err := push.NewFCMClient(ctx, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("init FCM client failed")
	}

	var wa whatsapp.Sender
	if cfg.Twilio.AccountSID != "" {
		wa = whatsapp.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppSender)
		log.Info().Msg("whatsapp channel enabled")
	} else {
		log.Warn().Msg("whatsapp channel disabled: no Twilio account configured")
	}

	var forecast weather.ForecastSource
	if cfg.Warning.ForecastFixture {
		forecast = &weather.FixtureSource{}
		log.Warn().Msg("using the fixed rain forecast fixture")
	} else {
		forecast = weather.NewHTTPSource()
	}

	// Warning pipeline.
	tokens := &services.TokenService{DB: db, Push: fcm, Topic: cfg.Warning.Topic}
	evaluator := &services.ConditionEvaluator{
		DB:              db,
		Forecast:        forecast,
		LocationCode:    cfg.Warning.LocationCode,
		ReportThreshold: cfg.Warning.ReportThreshold,
		WeatherGuard:    cfg.Warning.WeatherGuard,
	}
	guard := &services.DedupGuard{
		DB: db,
		Intervals: map[domain.WarningKind]time.Duration{
			domain.KindFlood:           cfg.Warning.FloodInterval,
			domain.KindWeather:         cfg.Warning.WeatherInterval,
			domain.KindReportThreshold: cfg.Warning.ReportInterval,
		},
		JitterMin: cfg.Dispatch.JitterMin,
		JitterMax: cfg.Dispatch.JitterMax,
	}
	dispatcher := &services.FanoutDispatcher{
		DB:          db,
		Tokens:      tokens,
		Push:        fcm,
		WhatsApp:    wa,
		Topic:       cfg.Warning.Topic,
		BatchSize:   cfg.Dispatch.BatchSize,
		SendStagger: cfg.Dispatch.SendStagger,
		BatchDelay:  cfg.Dispatch.BatchDelay,
		PushTTL:     cfg.Dispatch.PushTTL,
	}
	warnings := &services.WarningService{
		DB:         db,
		Evaluator:  evaluator,
		Guard:      guard,
		Dispatcher: dispatcher,
	}

	sched := &scheduler.Scheduler{
		Runner:  warnings,
		Sweeper: tokens,
		Intervals: map[domain.WarningKind]time.Duration{
			domain.KindFlood:           cfg.Scheduler.FloodPeriod,
			domain.KindWeather:         cfg.Scheduler.WeatherPeriod,
			domain.KindReportThreshold: cfg.Scheduler.ReportPeriod,
		},
		SweepInterval: cfg.Scheduler.ValidatePeriod,
		RunTimeout:    cfg.Dispatch.RunTimeout,
	}
	sched.Start(ctx)

	// HTTP transport.
	r := gin.New()
	h := handlers.New(warnings, evaluator, sched, tokens)
	httpapi.RegisterRoutes(r, db, h, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	sched.Wait()

	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

// fcmCredentials resolves the service-account JSON from the inline value or
// the file path, inline winning when both are set.
func fcmCredentials(cfg config.FCMConfig) ([]byte, error) {
	if cfg.CredentialsJSON != "" {
		return []byte(cfg.CredentialsJSON), nil
	}
	if cfg.CredentialsFile != "" {
		return os.ReadFile(cfg.CredentialsFile)
	}
	return nil, errors.New("FCM_CREDENTIALS_JSON or FCM_CREDENTIALS_FILE must be set")
}
