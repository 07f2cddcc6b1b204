// Package weather provides the "get_weather" built-in tool, backed by the
// Open-Meteo APIs (no API key required).
//
// A location argument of the form "lat,lon" skips geocoding; anything else
// is resolved through the Open-Meteo geocoding endpoint first.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/pkg/types"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	requestTimeout = 8 * time.Second
)

// wmoDescriptions maps WMO weather codes to short spoken descriptions
// (subset: the codes Open-Meteo actually emits for current conditions).
var wmoDescriptions = map[int]string{
	0: "clear", 1: "mainly clear", 2: "partly cloudy", 3: "overcast",
	45: "foggy", 48: "foggy", 51: "drizzle", 61: "light rain", 63: "rain", 65: "heavy rain",
	71: "snow", 73: "snow", 75: "heavy snow", 80: "rain showers", 81: "rain showers", 82: "heavy rain showers",
	95: "thunderstorm", 96: "thunderstorm with hail",
}

// getWeatherArgs is the JSON-decoded input for the "get_weather" tool.
type getWeatherArgs struct {
	Location string `json:"location"`
}

// Report is the JSON-encoded output of the "get_weather" tool.
type Report struct {
	Location        string   `json:"location"`
	TemperatureF    *int     `json:"temperature_f"`
	TemperatureC    *float64 `json:"temperature_c"`
	Conditions      string   `json:"conditions"`
	HumidityPercent *float64 `json:"humidity_percent"`
	WindKMH         *float64 `json:"wind_kmh"`
}

// Client fetches current weather for a location.
type Client struct {
	geocodeURL      string
	forecastURL     string
	defaultLocation string
	httpc           *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURLs overrides the Open-Meteo endpoints, typically with a test
// server.
func WithBaseURLs(geocode, forecast string) Option {
	return func(c *Client) {
		c.geocodeURL = geocode
		c.forecastURL = forecast
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient creates a weather client. defaultLocation is used when the model
// omits the location argument.
func NewClient(defaultLocation string, opts ...Option) *Client {
	c := &Client{
		geocodeURL:      defaultGeocodeURL,
		forecastURL:     defaultForecastURL,
		defaultLocation: defaultLocation,
		httpc:           &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Tools returns the weather tool set backed by c.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "get_weather",
				Description: "Get current weather for a location. Use when the user asks about weather, temperature, or conditions. location is optional; if omitted, use the default area.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"location": map[string]any{"type": "string", "description": "City or place name (e.g. San Francisco), or leave empty for default"},
					},
				},
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a getWeatherArgs
				if args != "" {
					if err := json.Unmarshal([]byte(args), &a); err != nil {
						return "", fmt.Errorf("decode args: %w", err)
					}
				}
				report, err := c.Current(ctx, a.Location)
				if err != nil {
					return "", err
				}
				b, err := json.Marshal(report)
				if err != nil {
					return "", fmt.Errorf("encode result: %w", err)
				}
				return string(b), nil
			},
		},
	}
}

// Current resolves location and fetches the current conditions.
func (c *Client) Current(ctx context.Context, location string) (*Report, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		location = c.defaultLocation
	}

	lat, lon, ok := parseLatLon(location)
	if !ok {
		var err error
		lat, lon, location, err = c.geocode(ctx, location)
		if err != nil {
			return nil, err
		}
	}

	return c.fetchCurrent(ctx, lat, lon, location)
}

// parseLatLon accepts "37.77,-122.42" style locations.
func parseLatLon(location string) (lat, lon float64, ok bool) {
	parts := strings.SplitN(location, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (c *Client) geocode(ctx context.Context, name string) (lat, lon float64, resolved string, err error) {
	q := url.Values{"name": {name}, "count": {"1"}}
	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"?"+q.Encode(), &resp); err != nil {
		return 0, 0, "", fmt.Errorf("weather: geocode %q: %w", name, err)
	}
	if len(resp.Results) == 0 {
		return 0, 0, "", fmt.Errorf("weather: could not find location %q", name)
	}
	r := resp.Results[0]
	if r.Name == "" {
		r.Name = name
	}
	return r.Latitude, r.Longitude, r.Name, nil
}

type forecastResponse struct {
	Current struct {
		Temperature2M      *float64 `json:"temperature_2m"`
		RelativeHumidity2M *float64 `json:"relative_humidity_2m"`
		WeatherCode        int      `json:"weather_code"`
		WindSpeed10M       *float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

func (c *Client) fetchCurrent(ctx context.Context, lat, lon float64, location string) (*Report, error) {
	q := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"current":   {"temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m"},
	}
	var resp forecastResponse
	if err := c.getJSON(ctx, c.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("weather: forecast: %w", err)
	}

	desc, ok := wmoDescriptions[resp.Current.WeatherCode]
	if !ok {
		desc = "conditions"
	}
	report := &Report{
		Location:        location,
		TemperatureC:    resp.Current.Temperature2M,
		Conditions:      desc,
		HumidityPercent: resp.Current.RelativeHumidity2M,
		WindKMH:         resp.Current.WindSpeed10M,
	}
	if resp.Current.Temperature2M != nil {
		f := int(math.Round(*resp.Current.Temperature2M*9/5 + 32))
		report.TemperatureF = &f
	}
	return report, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
