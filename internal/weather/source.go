// Package weather – forecast sources.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ForecastSource fetches the forecast for an administrative location code.
// Implementations must be safe for concurrent use.
type ForecastSource interface {
	GetForecast(ctx context.Context, locationCode string) (*Forecast, error)
}

// DefaultBaseURL is the public BMKG forecast endpoint.
const DefaultBaseURL = "https://api.bmkg.go.id/publik/prakiraan-cuaca"

// HTTPSource fetches forecasts from the BMKG public API.
type HTTPSource struct {
	// BaseURL of the forecast endpoint; DefaultBaseURL when empty.
	BaseURL string
	// Client is the HTTP client; a 15-second-timeout client when nil.
	Client *http.Client
}

// NewHTTPSource returns an HTTPSource against the public endpoint with a
// bounded request timeout.
func NewHTTPSource() *HTTPSource {
	return &HTTPSource{
		BaseURL: DefaultBaseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// GetForecast fetches and decodes the forecast for locationCode (the adm4
// village code). Provider unavailability and malformed payloads surface as
// errors; the caller abandons the cycle and retries on its next tick.
func (s *HTTPSource) GetForecast(ctx context.Context, locationCode string) (*Forecast, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("weather: bad base url: %w", err)
	}
	q := u.Query()
	q.Set("adm4", locationCode)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a little of the body for the log line, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("weather: forecast endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var f Forecast
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("weather: decode forecast: %w", err)
	}
	return &f, nil
}

// FixtureSource is a ForecastSource that always predicts heavy rain a fixed
// offset from now. It replaces the original deployment's ambient demo-mode
// switch: callers choose the fixture at construction time and the rest of the
// pipeline is exercised unchanged.
type FixtureSource struct {
	// Offset is how far in the future the fixture rain lands; 1 hour when zero.
	Offset time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// GetForecast returns a single-record forecast predicting "Hujan Lebat" at
// now+Offset, in WIB.
func (s *FixtureSource) GetForecast(_ context.Context, _ string) (*Forecast, error) {
	offset := s.Offset
	if offset == 0 {
		offset = time.Hour
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now().In(WIB).Add(offset)
	return &Forecast{
		Data: []Location{{
			Cuaca: [][]Hourly{{{
				WeatherDesc:   "Hujan Lebat",
				LocalDatetime: at.Format(localDatetimeLayout),
			}}},
		}},
	}, nil
}
