package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/thursdaylabs/thursday/internal/schema"
)

const geocodeAustin = `{"results":[{
	"name":"Austin","latitude":30.2672,"longitude":-97.7431,
	"admin1":"Texas","country":"United States","timezone":"America/Chicago"}]}`

const forecastAustin = `{
	"latitude":30.2672,"longitude":-97.7431,"timezone":"America/Chicago",
	"current_weather":{"temperature":72.5,"windspeed":8.1,"weathercode":1,"time":"2024-01-15T12:00"},
	"daily":{
		"time":["2024-01-15"],
		"temperature_2m_max":[75.0],
		"temperature_2m_min":[55.2],
		"precipitation_sum":[0.1]
	}}`

// weatherFixture stands up geocode and forecast endpoints and returns a
// registry wired to them.
func weatherFixture(t *testing.T, geocodeBody string, forecast http.HandlerFunc) (*Registry, *weatherRecorder) {
	t.Helper()
	rec := &weatherRecorder{}

	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.geocodeCalls++
		rec.lastGeocodeQuery = r.URL.Query()
		if r.URL.Path != "/v1/search" {
			t.Errorf("geocode path: got %q", r.URL.Path)
		}
		fmt.Fprint(w, geocodeBody)
	}))
	t.Cleanup(geo.Close)

	fc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.forecastCalls++
		rec.lastForecastQuery = r.URL.Query()
		if r.URL.Path != "/v1/forecast" {
			t.Errorf("forecast path: got %q", r.URL.Path)
		}
		forecast(w, r)
	}))
	t.Cleanup(fc.Close)

	client := NewWeatherClient(geo.URL, fc.URL, 5*time.Second)
	return NewRegistry(discardLogger(), client, fixedClock), rec
}

type weatherRecorder struct {
	geocodeCalls      int
	forecastCalls     int
	lastGeocodeQuery  map[string][]string
	lastForecastQuery map[string][]string
}

func TestGetWeather(t *testing.T) {
	r, rec := weatherFixture(t, geocodeAustin, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, forecastAustin)
	})

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetWeather,
		Args: map[string]any{"location": "Austin"},
	})
	if !res.OK {
		t.Fatalf("get_weather failed: %q", res.Error)
	}

	if got := res.Data["place"]; got != "Austin, Texas, United States" {
		t.Errorf("place: got %v", got)
	}
	if got := res.Data["units"]; got != "imperial" {
		t.Errorf("units: got %v (imperial is the default)", got)
	}
	current, ok := res.Data["current"].(map[string]any)
	if !ok {
		t.Fatalf("current: got %T", res.Data["current"])
	}
	if current["temperature"] != 72.5 {
		t.Errorf("current temperature: got %v", current["temperature"])
	}
	today, ok := res.Data["today"].(map[string]any)
	if !ok {
		t.Fatalf("today: got %T", res.Data["today"])
	}
	if today["temp_max"] != 75.0 || today["temp_min"] != 55.2 || today["precipitation"] != 0.1 {
		t.Errorf("today: got %v", today)
	}

	// Imperial units must reach the forecast service.
	if got := rec.lastForecastQuery["temperature_unit"]; len(got) == 0 || got[0] != "fahrenheit" {
		t.Errorf("temperature_unit: got %v", got)
	}
	if got := rec.lastGeocodeQuery["name"]; len(got) == 0 || got[0] != "Austin" {
		t.Errorf("geocode name: got %v", got)
	}
}

func TestGetWeatherMetricUnits(t *testing.T) {
	r, rec := weatherFixture(t, geocodeAustin, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, forecastAustin)
	})

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetWeather,
		Args: map[string]any{"location": "Austin", "units": "metric"},
	})
	if !res.OK {
		t.Fatalf("get_weather failed: %q", res.Error)
	}
	if got := res.Data["units"]; got != "metric" {
		t.Errorf("units: got %v", got)
	}
	// Metric is Open-Meteo's default; no unit overrides on the wire.
	if got := rec.lastForecastQuery["temperature_unit"]; len(got) != 0 {
		t.Errorf("temperature_unit should be absent for metric, got %v", got)
	}
}

func TestGetWeatherInvalidUnits(t *testing.T) {
	r, rec := weatherFixture(t, geocodeAustin, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, forecastAustin)
	})

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetWeather,
		Args: map[string]any{"location": "Austin", "units": "kelvin"},
	})
	if res.OK {
		t.Error("invalid units must not succeed")
	}
	if res.Error != "invalid_units" {
		t.Errorf("error: got %q", res.Error)
	}
	if rec.geocodeCalls != 0 {
		t.Error("invalid units must be rejected before any network call")
	}
}

func TestGetWeatherDaysClamped(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "1"},
		{-3, "1"},
		{4, "4"},
		{99, "7"},
	}

	for _, tc := range tests {
		r, rec := weatherFixture(t, geocodeAustin, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, forecastAustin)
		})

		res := r.Dispatch(context.Background(), schema.ToolCall{
			Name: schema.ToolGetWeather,
			Args: map[string]any{"location": "Austin", "days": tc.in},
		})
		if !res.OK {
			t.Fatalf("days=%v: get_weather failed: %q", tc.in, res.Error)
		}
		if got := rec.lastForecastQuery["forecast_days"]; len(got) == 0 || got[0] != tc.want {
			t.Errorf("days=%v: forecast_days got %v, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetWeatherMissingLocation(t *testing.T) {
	// A registry with no weather client at all: the blank-location check
	// must short-circuit before the client is touched.
	r := NewRegistry(discardLogger(), nil, fixedClock)

	for _, args := range []map[string]any{
		{},
		{"location": ""},
		{"location": "   "},
	} {
		res := r.Dispatch(context.Background(), schema.ToolCall{Name: schema.ToolGetWeather, Args: args})
		if res.OK {
			t.Errorf("args %v should fail", args)
		}
		if res.Error != ErrMissingLocation {
			t.Errorf("args %v: error got %q, want %q", args, res.Error, ErrMissingLocation)
		}
	}
}

func TestGetWeatherGeocodeNoResults(t *testing.T) {
	r, rec := weatherFixture(t, `{"results":[]}`, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("forecast must not be called when geocoding finds nothing")
	})

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetWeather,
		Args: map[string]any{"location": "Atlantis"},
	})
	if res.OK {
		t.Error("unresolvable location must not succeed")
	}
	if res.Error != ErrGeocodeNoResults {
		t.Errorf("error: got %q, want %q", res.Error, ErrGeocodeNoResults)
	}
	if got := res.Data["location"]; got != "Atlantis" {
		t.Errorf("data location: got %v", got)
	}
	if rec.forecastCalls != 0 {
		t.Errorf("forecast calls: got %d, want 0", rec.forecastCalls)
	}
}

func TestGetWeatherServiceFault(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(geo.Close)

	client := NewWeatherClient(geo.URL, geo.URL, 5*time.Second)
	r := NewRegistry(discardLogger(), client, fixedClock)

	res := r.Dispatch(context.Background(), schema.ToolCall{
		Name: schema.ToolGetWeather,
		Args: map[string]any{"location": "Austin"},
	})
	if res.OK {
		t.Error("service fault must not succeed")
	}
	if !strings.HasPrefix(res.Error, "tool_exception: ") {
		t.Errorf("error: got %q, want tool_exception prefix", res.Error)
	}
}
