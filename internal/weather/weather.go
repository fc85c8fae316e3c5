// Package weather fetches a three day forecast from the Pirate Weather API
// (which keeps the Dark Sky response shape) and maps it into the snapshot's
// display form.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	appLog "tinker/internal/log"
	"tinker/internal/model"
)

// ErrUpstreamUnavailable marks a failed or malformed upstream forecast call.
// The aggregator degrades the weather section instead of failing the snapshot.
var ErrUpstreamUnavailable = errors.New("weather: upstream unavailable")

const (
	defaultBaseURL = "https://api.pirateweather.net"
	// Forecast responses change slowly; cache them to stay well inside the
	// API's monthly call quota.
	defaultCacheTTL = 30 * time.Minute
)

// forecastResponse is the subset of the provider payload the dashboard needs.
type forecastResponse struct {
	Currently struct {
		Icon        string   `json:"icon"`
		Temperature *float64 `json:"temperature"`
		Summary     string   `json:"summary"`
	} `json:"currently"`
	Daily struct {
		Data []struct {
			Icon            string   `json:"icon"`
			TemperatureHigh *float64 `json:"temperatureHigh"`
			TemperatureLow  *float64 `json:"temperatureLow"`
		} `json:"data"`
	} `json:"daily"`
}

// Client fetches forecasts for a fixed location.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client

	cacheMu  sync.Mutex
	cached   *model.WeatherSummary
	cachedAt time.Time
	cacheTTL time.Duration
}

// Option adjusts a Client. Used by tests to point at a fake server.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithCacheTTL overrides the forecast cache lifetime. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.cacheTTL = d }
}

// NewClient creates a forecast client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchForecast returns the display-ready weather block for the given
// location: current conditions plus exactly three per-day entries for today,
// tomorrow, and the day after. The weekday labels are derived from now, not
// from the provider payload, matching the fixed index correspondence.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64, label string) (*model.WeatherSummary, error) {
	now := time.Now()

	c.cacheMu.Lock()
	if c.cached != nil && c.cacheTTL > 0 && now.Sub(c.cachedAt) < c.cacheTTL {
		cached := *c.cached
		age := now.Sub(c.cachedAt)
		c.cacheMu.Unlock()
		appLog.Debug("weather cache hit", "age", age)
		return &cached, nil
	}
	c.cacheMu.Unlock()

	summary, err := c.fetch(ctx, now, lat, lon, label)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.cached = summary
	c.cachedAt = now
	c.cacheMu.Unlock()

	out := *summary
	return &out, nil
}

func (c *Client) fetch(ctx context.Context, now time.Time, lat, lon float64, label string) (*model.WeatherSummary, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: api key is empty", ErrUpstreamUnavailable)
	}

	url := fmt.Sprintf("%s/forecast/%s/%.6f,%.6f", c.baseURL, c.apiKey, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrUpstreamUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var fr forecastResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstreamUnavailable, err)
	}

	if fr.Currently.Temperature == nil {
		return nil, fmt.Errorf("%w: response missing current temperature", ErrUpstreamUnavailable)
	}
	if len(fr.Daily.Data) < 3 {
		return nil, fmt.Errorf("%w: response has %d daily entries, need 3", ErrUpstreamUnavailable, len(fr.Daily.Data))
	}

	summary := &model.WeatherSummary{
		CurrentIcon:    IconClass(fr.Currently.Icon),
		CurrentTemp:    roundTemp(*fr.Currently.Temperature),
		CurrentSummary: fr.Currently.Summary,
		Location:       label,
		Days:           make([]model.DayForecast, 0, 3),
	}

	day := now
	for i := 0; i < 3; i++ {
		d := fr.Daily.Data[i]
		if d.TemperatureHigh == nil || d.TemperatureLow == nil {
			return nil, fmt.Errorf("%w: daily entry %d missing temperatures", ErrUpstreamUnavailable, i)
		}
		summary.Days = append(summary.Days, model.DayForecast{
			Day:  day.Format("Mon"),
			Icon: IconClass(d.Icon),
			High: roundTemp(*d.TemperatureHigh),
			Low:  roundTemp(*d.TemperatureLow),
		})
		day = day.AddDate(0, 0, 1)
	}

	appLog.Info("weather fetch success", "location", label, "current_temp", summary.CurrentTemp)
	return summary, nil
}

// IconClass maps a provider condition code to a weather-icons CSS class.
// The mapping is total: unknown codes get the not-available icon.
func IconClass(code string) string {
	switch code {
	case "clear-day":
		return "wi wi-day-sunny"
	case "clear-night":
		return "wi wi-night-clear"
	case "rain":
		return "wi wi-rain"
	case "snow":
		return "wi wi-snow"
	case "sleet":
		return "wi wi-sleet"
	case "wind":
		return "wi wi-wind"
	case "fog":
		return "wi wi-fog"
	case "cloudy":
		return "wi wi-cloudy"
	case "partly-cloudy-day":
		return "wi wi-forecast-io-partly-cloudy-day"
	case "partly-cloudy-night":
		return "wi wi-forecast-io-partly-cloudy-night"
	default:
		return "wi wi-na"
	}
}

// roundTemp rounds to the nearest integer, half up (ties away from zero).
func roundTemp(v float64) int {
	if v < 0 {
		return -int(math.Floor(-v + 0.5))
	}
	return int(math.Floor(v + 0.5))
}
