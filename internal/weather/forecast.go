// Package weather provides access to the public BMKG forecast feed and the
// rain classification used by the weather warning condition. It is a thin
// collaborator layer: it fetches, flattens, and classifies forecast data, and
// leaves the warning decision itself to the service layer.
//
// Design notes:
//   - The provider returns a nested structure (locations → forecast periods →
//     hourly records); Flatten collapses it into one ordered slice so callers
//     never deal with the nesting.
//   - The concrete data source is behind the ForecastSource interface with a
//     real HTTP implementation and a fixed-fixture implementation, selected at
//     construction time. Business logic never branches on ambient mode flags.
package weather

import (
	"fmt"
	"strings"
	"time"
)

// WIB is Indonesia western time (UTC+7), the zone the BMKG feed reports
// local_datetime in and the zone user-visible forecast times are rendered in.
var WIB = time.FixedZone("WIB", 7*60*60)

// localDatetimeLayout is the timestamp layout used by the feed.
const localDatetimeLayout = "2006-01-02 15:04:05"

// Hourly is a single hourly forecast record.
type Hourly struct {
	// WeatherDesc is the human-readable condition, e.g. "Hujan Ringan".
	WeatherDesc string `json:"weather_desc"`
	// LocalDatetime is the forecast's local wall-clock time in WIB,
	// formatted as "2006-01-02 15:04:05".
	LocalDatetime string `json:"local_datetime"`
}

// LocalTime parses the record's local timestamp in WIB.
func (h Hourly) LocalTime() (time.Time, error) {
	s := strings.TrimSpace(h.LocalDatetime)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty local_datetime")
	}
	t, err := time.ParseInLocation(localDatetimeLayout, s, WIB)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse local_datetime %q: %w", s, err)
	}
	return t, nil
}

// Location is one forecast location with its nested per-period hourly groups.
type Location struct {
	Cuaca [][]Hourly `json:"cuaca"`
}

// Forecast is the top-level feed response.
type Forecast struct {
	Data []Location `json:"data"`
}

// Flatten collapses the first location's nested period groups into a single
// ordered slice of hourly records. It returns nil when the response carries
// no usable location data; that is "nothing to warn about", not an error.
func (f *Forecast) Flatten() []Hourly {
	if f == nil || len(f.Data) == 0 {
		return nil
	}
	var out []Hourly
	for _, group := range f.Data[0].Cuaca {
		out = append(out, group...)
	}
	return out
}
