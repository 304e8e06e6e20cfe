// Package services – ConditionEvaluator
//
// This file implements the ConditionEvaluator, which decides for each warning
// kind whether a warning condition currently exists and, when it does,
// renders the user-visible message body. Evaluation is strictly read-only:
// it never writes the ledger (that is the pipeline's responsibility after a
// dispatch is committed to) and it never mutates provider state.
//
// "No data" is not an error. A missing flood record, an empty forecast, or a
// report count below threshold all evaluate to shouldWarn=false; only
// provider failures (timeouts, malformed responses) surface as errors, which
// abandon the cycle for that kind until the next scheduled tick.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/sigab-app/sigab-backend/internal/domain"
	"github.com/sigab-app/sigab-backend/internal/repo"
	"github.com/sigab-app/sigab-backend/internal/weather"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConditionEvaluator answers "should we warn right now, and with what
// message" for every warning kind.
type ConditionEvaluator struct {
	// DB is the GORM handle for report and flood-information queries.
	DB *gorm.DB
	// Forecast supplies weather data; real HTTP source or fixture.
	Forecast weather.ForecastSource
	// LocationCode is the administrative code evaluated for rain.
	LocationCode string
	// ReportThreshold is the number of valid flood reports per day that
	// triggers the report warning.
	ReportThreshold int
	// WeatherGuard skips forecasts closer than this to evaluation time, so
	// a warning is never issued for rain already (nearly) underway.
	WeatherGuard time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

func (e *ConditionEvaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate checks the condition for kind and, when it holds, returns the
// rendered WarningEvent. shouldWarn=false with a nil error means "nothing to
// warn about"; an error means the cycle must be abandoned.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, kind domain.WarningKind) (bool, domain.WarningEvent, error) {
	tr := otel.Tracer("services/ConditionEvaluator")
	ctx, span := tr.Start(ctx, "Evaluate",
		trace.WithAttributes(attribute.String("warning.kind", kind.String())),
	)
	defer span.End()

	switch kind {
	case domain.KindFlood:
		return e.evaluateFlood(ctx)
	case domain.KindWeather:
		return e.evaluateWeather(ctx)
	case domain.KindReportThreshold:
		return e.evaluateReports(ctx)
	}
	return false, domain.WarningEvent{}, ErrUnknownKind
}

// evaluateFlood warns about the most recently recorded flood. No flood data
// at all fails closed: nothing to warn about.
func (e *ConditionEvaluator) evaluateFlood(ctx context.Context) (bool, domain.WarningEvent, error) {
	fi, err := repo.LatestFloodInfo(ctx, e.DB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.WarningEvent{}, nil
		}
		return false, domain.WarningEvent{}, err
	}

	body := fmt.Sprintf("Banjir terdeteksi di wilayah %s, Mohon waspada", fi.Area)
	ev := domain.NewWarningEvent(domain.KindFlood, body, e.now(), map[string]string{
		"wilayah_banjir": fi.Area,
		"source":         "cron_job",
	})
	return true, ev, nil
}

// evaluateWeather pulls the forecast, flattens it, and selects the earliest
// rain forecast that is still today and at least the guard interval away.
func (e *ConditionEvaluator) evaluateWeather(ctx context.Context) (bool, domain.WarningEvent, error) {
	f, err := e.Forecast.GetForecast(ctx, e.LocationCode)
	if err != nil {
		return false, domain.WarningEvent{}, err
	}

	hourly := f.Flatten()
	if len(hourly) == 0 {
		return false, domain.WarningEvent{}, nil
	}

	now := e.now().In(weather.WIB)
	selected, ok := selectRainForecast(hourly, now, e.WeatherGuard)
	if !ok {
		return false, domain.WarningEvent{}, nil
	}

	at, _ := selected.LocalTime() // already validated by selectRainForecast
	jam := at.Format("15.04")
	body := fmt.Sprintf("Peringatan dini: %s diperkirakan terjadi pada pukul %s WIB.", selected.WeatherDesc, jam)
	ev := domain.NewWarningEvent(domain.KindWeather, body, e.now(), map[string]string{
		"jam":    jam,
		"cuaca":  selected.WeatherDesc,
		"source": "cron_job",
	})
	return true, ev, nil
}

// selectRainForecast returns the earliest hourly record that predicts rain,
// falls on the same WIB calendar day as now, and is more than guard in the
// future. Records with unparseable timestamps are skipped.
func selectRainForecast(hourly []weather.Hourly, now time.Time, guard time.Duration) (weather.Hourly, bool) {
	type candidate struct {
		at time.Time
		h  weather.Hourly
	}
	var candidates []candidate
	for _, h := range hourly {
		at, err := h.LocalTime()
		if err != nil {
			continue
		}
		if at.Year() != now.Year() || at.YearDay() != now.YearDay() {
			continue
		}
		if at.Sub(now) <= guard {
			continue
		}
		if !weather.IsRain(h.WeatherDesc) {
			continue
		}
		candidates = append(candidates, candidate{at: at, h: h})
	}
	if len(candidates) == 0 {
		return weather.Hourly{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })
	return candidates[0].h, true
}

// evaluateReports counts today's valid flood reports against the threshold.
// The body is a fixed warning string; it does not vary with the count.
func (e *ConditionEvaluator) evaluateReports(ctx context.Context) (bool, domain.WarningEvent, error) {
	total, err := repo.CountValidFloodReportsOn(ctx, e.DB, e.now())
	if err != nil {
		return false, domain.WarningEvent{}, err
	}
	threshold := e.ReportThreshold
	if threshold < 1 {
		threshold = 3
	}
	if total < int64(threshold) {
		return false, domain.WarningEvent{}, nil
	}

	body := fmt.Sprintf("Terdapat %d laporan banjir valid hari ini. Mohon waspada dan perhatikan informasi lebih lanjut.", threshold)
	ev := domain.NewWarningEvent(domain.KindReportThreshold, body, e.now(), map[string]string{
		"source": "cron_job",
	})
	return true, ev, nil
}

// ReportStatus is the payload of the on-demand report-threshold check.
type ReportStatus struct {
	TotalValidReports int64 `json:"total_valid_reports"`
	ShouldNotify      bool  `json:"should_notify"`
}

// ReportStatus returns today's valid flood report count and whether it meets
// the threshold. Used by the manual "check now" endpoint.
func (e *ConditionEvaluator) ReportStatus(ctx context.Context) (ReportStatus, error) {
	total, err := repo.CountValidFloodReportsOn(ctx, e.DB, e.now())
	if err != nil {
		return ReportStatus{}, err
	}
	threshold := e.ReportThreshold
	if threshold < 1 {
		threshold = 3
	}
	return ReportStatus{
		TotalValidReports: total,
		ShouldNotify:      total >= int64(threshold),
	}, nil
}
