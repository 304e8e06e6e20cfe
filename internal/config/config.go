// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, warning cadences and
// re-fire intervals, fan-out pacing, provider credentials, rate limiting, and
// observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "sigab-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// WarningConfig holds the per-kind warning policy: minimum re-fire intervals,
// the citizen-report threshold, and the weather selection parameters.
type WarningConfig struct {
	FloodInterval   time.Duration // WARN_FLOOD_INTERVAL, min re-fire for flood warnings
	WeatherInterval time.Duration // WARN_WEATHER_INTERVAL
	ReportInterval  time.Duration // WARN_REPORT_INTERVAL
	ReportThreshold int           // WARN_REPORT_THRESHOLD, valid reports per day triggering a warning
	WeatherGuard    time.Duration // WARN_WEATHER_GUARD, ignore forecasts closer than this
	LocationCode    string        // WARN_LOCATION_CODE, BMKG adm4 village code
	ForecastFixture bool          // WARN_FORECAST_FIXTURE, use the fixed rain fixture instead of the live feed
	Topic           string        // WARN_TOPIC, FCM broadcast topic
}

// DispatchConfig paces the push fan-out and bounds each scheduled run.
type DispatchConfig struct {
	BatchSize   int           // DISPATCH_BATCH_SIZE, tokens per concurrent batch
	SendStagger time.Duration // DISPATCH_SEND_STAGGER, delay between sends inside a batch
	BatchDelay  time.Duration // DISPATCH_BATCH_DELAY, delay between batches
	PushTTL     time.Duration // DISPATCH_PUSH_TTL, provider-side buffering for offline devices
	JitterMin   time.Duration // DISPATCH_JITTER_MIN, dedup double-check delay lower bound
	JitterMax   time.Duration // DISPATCH_JITTER_MAX, upper bound
	RunTimeout  time.Duration // DISPATCH_RUN_TIMEOUT, hard per-run deadline
}

// SchedulerConfig sets the trigger period per warning kind plus the token
// validation sweep.
type SchedulerConfig struct {
	FloodPeriod    time.Duration // SCHED_FLOOD_PERIOD
	WeatherPeriod  time.Duration // SCHED_WEATHER_PERIOD
	ReportPeriod   time.Duration // SCHED_REPORT_PERIOD
	ValidatePeriod time.Duration // SCHED_VALIDATE_PERIOD
}

// FCMConfig identifies the Firebase service account. The JSON credential is
// passed inline (deployment secret) or as a file path (local development).
type FCMConfig struct {
	CredentialsJSON string // FCM_CREDENTIALS_JSON
	CredentialsFile string // FCM_CREDENTIALS_FILE
}

// TwilioConfig holds the WhatsApp transport credentials. The channel is
// disabled when the account SID is empty.
type TwilioConfig struct {
	AccountSID     string // TWILIO_ACCOUNT_SID
	AuthToken      string // TWILIO_AUTH_TOKEN
	WhatsAppSender string // TWILIO_WHATSAPP_SENDER, e.g. "whatsapp:+14155238886"
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Warning pipeline
	Warning   WarningConfig
	Dispatch  DispatchConfig
	Scheduler SchedulerConfig
	FCM       FCMConfig
	Twilio    TwilioConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/app")),

		// App
		DBPath: getenv("DB_PATH", "sigab.db"),

		// Warning pipeline
		Warning: WarningConfig{
			FloodInterval:   getdur("WARN_FLOOD_INTERVAL", 24*time.Hour),
			WeatherInterval: getdur("WARN_WEATHER_INTERVAL", time.Hour),
			ReportInterval:  getdur("WARN_REPORT_INTERVAL", time.Hour),
			ReportThreshold: getint("WARN_REPORT_THRESHOLD", 3),
			WeatherGuard:    getdur("WARN_WEATHER_GUARD", 30*time.Minute),
			LocationCode:    getenv("WARN_LOCATION_CODE", "32.04.12.2006"),
			ForecastFixture: getbool("WARN_FORECAST_FIXTURE", false),
			Topic:           getenv("WARN_TOPIC", "peringatan"),
		},
		Dispatch: DispatchConfig{
			BatchSize:   getint("DISPATCH_BATCH_SIZE", 10),
			SendStagger: getdur("DISPATCH_SEND_STAGGER", 100*time.Millisecond),
			BatchDelay:  getdur("DISPATCH_BATCH_DELAY", time.Second),
			PushTTL:     getdur("DISPATCH_PUSH_TTL", 7*24*time.Hour),
			JitterMin:   getdur("DISPATCH_JITTER_MIN", time.Second),
			JitterMax:   getdur("DISPATCH_JITTER_MAX", 6*time.Second),
			RunTimeout:  getdur("DISPATCH_RUN_TIMEOUT", 2*time.Minute),
		},
		Scheduler: SchedulerConfig{
			FloodPeriod:    getdur("SCHED_FLOOD_PERIOD", time.Minute),
			WeatherPeriod:  getdur("SCHED_WEATHER_PERIOD", 15*time.Minute),
			ReportPeriod:   getdur("SCHED_REPORT_PERIOD", time.Minute),
			ValidatePeriod: getdur("SCHED_VALIDATE_PERIOD", 24*time.Hour),
		},
		FCM: FCMConfig{
			CredentialsJSON: getenv("FCM_CREDENTIALS_JSON", ""),
			CredentialsFile: getenv("FCM_CREDENTIALS_FILE", ""),
		},
		Twilio: TwilioConfig{
			AccountSID:     getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:      getenv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppSender: getenv("TWILIO_WHATSAPP_SENDER", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "sigab-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Warning.FloodInterval <= 0 || cfg.Warning.WeatherInterval <= 0 || cfg.Warning.ReportInterval <= 0 {
		return cfg, errors.New("warning re-fire intervals must be positive durations")
	}
	if cfg.Warning.ReportThreshold < 1 {
		return cfg, errors.New("WARN_REPORT_THRESHOLD must be >= 1")
	}
	if cfg.Warning.WeatherGuard < 0 {
		return cfg, errors.New("WARN_WEATHER_GUARD must be >= 0")
	}
	if strings.TrimSpace(cfg.Warning.LocationCode) == "" {
		return cfg, errors.New("WARN_LOCATION_CODE must not be empty")
	}
	if strings.TrimSpace(cfg.Warning.Topic) == "" {
		return cfg, errors.New("WARN_TOPIC must not be empty")
	}
	if cfg.Dispatch.BatchSize < 1 {
		return cfg, errors.New("DISPATCH_BATCH_SIZE must be >= 1")
	}
	if cfg.Dispatch.SendStagger < 0 || cfg.Dispatch.BatchDelay < 0 {
		return cfg, errors.New("dispatch delays must be >= 0")
	}
	if cfg.Dispatch.PushTTL <= 0 {
		return cfg, errors.New("DISPATCH_PUSH_TTL must be > 0")
	}
	if cfg.Dispatch.JitterMin < 0 || cfg.Dispatch.JitterMax < cfg.Dispatch.JitterMin {
		return cfg, errors.New("dispatch jitter bounds must satisfy 0 <= min <= max")
	}
	if cfg.Dispatch.RunTimeout <= 0 {
		return cfg, errors.New("DISPATCH_RUN_TIMEOUT must be > 0")
	}
	if cfg.Scheduler.FloodPeriod <= 0 || cfg.Scheduler.WeatherPeriod <= 0 ||
		cfg.Scheduler.ReportPeriod <= 0 || cfg.Scheduler.ValidatePeriod <= 0 {
		return cfg, errors.New("scheduler periods must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
