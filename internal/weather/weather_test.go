package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIconClassIsTotal(t *testing.T) {
	known := map[string]string{
		"clear-day":           "wi wi-day-sunny",
		"clear-night":         "wi wi-night-clear",
		"rain":                "wi wi-rain",
		"snow":                "wi wi-snow",
		"sleet":               "wi wi-sleet",
		"wind":                "wi wi-wind",
		"fog":                 "wi wi-fog",
		"cloudy":              "wi wi-cloudy",
		"partly-cloudy-day":   "wi wi-forecast-io-partly-cloudy-day",
		"partly-cloudy-night": "wi wi-forecast-io-partly-cloudy-night",
	}
	for code, want := range known {
		if got := IconClass(code); got != want {
			t.Errorf("IconClass(%q) = %q, want %q", code, got, want)
		}
	}

	// Unrecognized inputs must still yield a non-empty icon, never an error.
	for _, code := range []string{"", "hail", "thunderstorm", "🌪", "CLEAR-DAY"} {
		if got := IconClass(code); got != "wi wi-na" {
			t.Errorf("IconClass(%q) = %q, want the not-available icon", code, got)
		}
	}
}

func TestRoundTempHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{71.2, 71},
		{71.5, 72},
		{71.8, 72},
		{72.5, 73}, // half-up, not half-even
		{0.5, 1},
		{0, 0},
		{-0.4, 0},
		{-2.5, -3}, // ties away from zero
		{-2.4, -2},
	}
	for _, tt := range tests {
		if got := roundTemp(tt.in); got != tt.want {
			t.Errorf("roundTemp(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

const sampleForecast = `{
	"currently": {"icon": "rain", "temperature": 54.5, "summary": "Light Rain"},
	"daily": {"data": [
		{"icon": "rain", "temperatureHigh": 60.2, "temperatureLow": 48.5},
		{"icon": "partly-cloudy-day", "temperatureHigh": 65.9, "temperatureLow": 50.1},
		{"icon": "bogus-code", "temperatureHigh": 70.0, "temperatureLow": 52.4}
	]}
}`

func TestFetchForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithCacheTTL(0))

	got, err := c.FetchForecast(context.Background(), 34.106081, -117.710486, "Harvey Mudd")
	if err != nil {
		t.Fatalf("FetchForecast returned error: %v", err)
	}

	if got.CurrentIcon != "wi wi-rain" {
		t.Errorf("CurrentIcon = %q", got.CurrentIcon)
	}
	if got.CurrentTemp != 55 {
		t.Errorf("CurrentTemp = %d, want 55", got.CurrentTemp)
	}
	if got.CurrentSummary != "Light Rain" {
		t.Errorf("CurrentSummary = %q", got.CurrentSummary)
	}
	if got.Location != "Harvey Mudd" {
		t.Errorf("Location = %q", got.Location)
	}
	if len(got.Days) != 3 {
		t.Fatalf("Days length = %d, want 3", len(got.Days))
	}
	if got.Days[0].High != 60 || got.Days[0].Low != 49 {
		t.Errorf("Days[0] = %+v", got.Days[0])
	}
	// Unknown daily icon still maps to a displayable class.
	if got.Days[2].Icon != "wi wi-na" {
		t.Errorf("Days[2].Icon = %q, want not-available icon", got.Days[2].Icon)
	}
}

func TestFetchForecastUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>nope</html>"))
			},
		},
		{
			name: "missing current temperature",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"currently":{"icon":"rain"},"daily":{"data":[{},{},{}]}}`))
			},
		},
		{
			name: "too few daily entries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"currently":{"icon":"rain","temperature":50,"summary":"x"},"daily":{"data":[]}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL), WithCacheTTL(0))
			_, err := c.FetchForecast(context.Background(), 0, 0, "x")
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Errorf("want ErrUpstreamUnavailable, got %v", err)
			}
		})
	}
}

func TestFetchForecastUsesCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))

	for i := 0; i < 3; i++ {
		if _, err := c.FetchForecast(context.Background(), 1, 2, "x"); err != nil {
			t.Fatalf("FetchForecast call %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1 (cache should absorb repeats)", calls)
	}
}
