package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thursdaylabs/thursday/internal/httpkit"
	"github.com/thursdaylabs/thursday/internal/schema"
)

// Default Open-Meteo endpoints. Both services are free, keyless, and
// local-friendly; tests point the client at httptest fixtures instead.
const (
	DefaultGeocodeURL  = "https://geocoding-api.open-meteo.com"
	DefaultForecastURL = "https://api.open-meteo.com"
)

// WeatherClient resolves free-text place names to coordinates and
// fetches forecasts for them.
type WeatherClient struct {
	geocodeURL  string
	forecastURL string
	httpClient  *http.Client
}

// NewWeatherClient creates a weather client. Empty URLs fall back to the
// public Open-Meteo services.
func NewWeatherClient(geocodeURL, forecastURL string, timeout time.Duration) *WeatherClient {
	if geocodeURL == "" {
		geocodeURL = DefaultGeocodeURL
	}
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WeatherClient{
		geocodeURL:  strings.TrimRight(geocodeURL, "/"),
		forecastURL: strings.TrimRight(forecastURL, "/"),
		httpClient:  httpkit.NewClient(httpkit.WithTimeout(timeout)),
	}
}

// Place is one geocoding candidate.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Admin1    string  `json:"admin1"`
	Country   string  `json:"country"`
	Timezone  string  `json:"timezone"`
}

// DisplayName renders the place with its admin region and country.
func (p Place) DisplayName() string {
	parts := []string{p.Name}
	if p.Admin1 != "" {
		parts = append(parts, p.Admin1)
	}
	if p.Country != "" {
		parts = append(parts, p.Country)
	}
	return strings.Join(parts, ", ")
}

// Geocode resolves a free-text location to the best-ranked candidate.
// Returns (nil, nil) when the service has no match.
func (c *WeatherClient) Geocode(ctx context.Context, location string) (*Place, error) {
	q := url.Values{}
	q.Set("name", location)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var result struct {
		Results []Place `json:"results"`
	}
	if err := c.getJSON(ctx, c.geocodeURL+"/v1/search?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

// forecastResponse is the subset of the forecast payload Thursday uses.
type forecastResponse struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Timezone       string  `json:"timezone"`
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		Windspeed   float64 `json:"windspeed"`
		Weathercode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Daily struct {
		Time             []string  `json:"time"`
		TemperatureMax   []float64 `json:"temperature_2m_max"`
		TemperatureMin   []float64 `json:"temperature_2m_min"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// Forecast fetches current conditions and daily aggregates for a place.
func (c *WeatherClient) Forecast(ctx context.Context, place *Place, units string, days int) (*forecastResponse, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', 4, 64))
	q.Set("current_weather", "true")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(days))
	if units == "imperial" {
		q.Set("temperature_unit", "fahrenheit")
		q.Set("windspeed_unit", "mph")
		q.Set("precipitation_unit", "inch")
	}

	var result forecastResponse
	if err := c.getJSON(ctx, c.forecastURL+"/v1/forecast?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", place.DisplayName(), err)
	}
	return &result, nil
}

func (c *WeatherClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 1024))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// weatherCapability resolves a location via geocoding, fetches a
// forecast, and summarizes the current conditions plus the same-day
// max/min temperature and precipitation total.
func weatherCapability(client *WeatherClient) Capability {
	return func(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
		name := string(schema.ToolGetWeather)

		location, _ := args["location"].(string)
		location = strings.TrimSpace(location)
		if location == "" {
			return schema.FailResult(name, ErrMissingLocation), nil
		}

		if client == nil {
			return schema.ToolResult{}, fmt.Errorf("weather client not configured")
		}

		units := "imperial"
		if u, ok := args["units"].(string); ok && u != "" {
			u = strings.ToLower(strings.TrimSpace(u))
			if u != "imperial" && u != "metric" {
				return schema.FailResultData(name, "invalid_units", map[string]any{"units": u}), nil
			}
			units = u
		}

		days := 1
		if d, ok := args["days"].(float64); ok {
			days = int(d)
		}
		if days < 1 {
			days = 1
		}
		if days > 7 {
			days = 7
		}

		place, err := client.Geocode(ctx, location)
		if err != nil {
			return schema.ToolResult{}, err
		}
		if place == nil {
			return schema.FailResultData(name, ErrGeocodeNoResults, map[string]any{"location": location}), nil
		}

		fc, err := client.Forecast(ctx, place, units, days)
		if err != nil {
			return schema.ToolResult{}, err
		}

		data := map[string]any{
			"place":     place.DisplayName(),
			"latitude":  place.Latitude,
			"longitude": place.Longitude,
			"timezone":  fc.Timezone,
			"units":     units,
			"current": map[string]any{
				"temperature": fc.CurrentWeather.Temperature,
				"windspeed":   fc.CurrentWeather.Windspeed,
				"weathercode": fc.CurrentWeather.Weathercode,
				"time":        fc.CurrentWeather.Time,
			},
		}

		if len(fc.Daily.Time) > 0 {
			today := map[string]any{"date": fc.Daily.Time[0]}
			if len(fc.Daily.TemperatureMax) > 0 {
				today["temp_max"] = fc.Daily.TemperatureMax[0]
			}
			if len(fc.Daily.TemperatureMin) > 0 {
				today["temp_min"] = fc.Daily.TemperatureMin[0]
			}
			if len(fc.Daily.PrecipitationSum) > 0 {
				today["precipitation"] = fc.Daily.PrecipitationSum[0]
			}
			data["today"] = today
		}

		return schema.OKResult(name, data), nil
	}
}
