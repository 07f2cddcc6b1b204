package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient stubs both Open-Meteo endpoints.
func newTestClient(t *testing.T, geocodeBody, forecastBody string) *Client {
	t.Helper()
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geocodeBody))
	}))
	t.Cleanup(geo.Close)
	fc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastBody))
	}))
	t.Cleanup(fc.Close)
	return NewClient("San Francisco", WithBaseURLs(geo.URL, fc.URL))
}

const forecastSunny = `{"current":{"temperature_2m":21.5,"relative_humidity_2m":60,"weather_code":0,"wind_speed_10m":12.3}}`

func TestCurrent_GeocodesAndReports(t *testing.T) {
	t.Parallel()

	c := newTestClient(t,
		`{"results":[{"name":"Berlin","latitude":52.52,"longitude":13.41}]}`,
		forecastSunny,
	)

	report, err := c.Current(context.Background(), "berlin")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if report.Location != "Berlin" {
		t.Errorf("expected resolved name Berlin, got %q", report.Location)
	}
	if report.TemperatureF == nil || *report.TemperatureF != 71 {
		t.Errorf("expected 21.5C -> 71F, got %v", report.TemperatureF)
	}
	if report.Conditions != "clear" {
		t.Errorf("expected clear, got %q", report.Conditions)
	}
}

func TestCurrent_LatLonSkipsGeocoding(t *testing.T) {
	t.Parallel()

	geocodeCalled := false
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geocodeCalled = true
		http.Error(w, "should not be called", http.StatusInternalServerError)
	}))
	t.Cleanup(geo.Close)
	fc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastSunny))
	}))
	t.Cleanup(fc.Close)

	c := NewClient("", WithBaseURLs(geo.URL, fc.URL))
	if _, err := c.Current(context.Background(), "37.77, -122.42"); err != nil {
		t.Fatalf("Current: %v", err)
	}
	if geocodeCalled {
		t.Error("lat,lon location should bypass geocoding")
	}
}

func TestCurrent_UnknownLocation(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, `{"results":[]}`, forecastSunny)
	if _, err := c.Current(context.Background(), "nowhere at all"); err == nil {
		t.Fatal("expected error for unresolvable location")
	}
}

func TestCurrent_EmptyLocationUsesDefault(t *testing.T) {
	t.Parallel()

	c := newTestClient(t,
		`{"results":[{"name":"San Francisco","latitude":37.77,"longitude":-122.42}]}`,
		forecastSunny,
	)
	report, err := c.Current(context.Background(), "")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if report.Location != "San Francisco" {
		t.Errorf("expected default location, got %q", report.Location)
	}
}

func TestCurrent_UnknownWMOCode(t *testing.T) {
	t.Parallel()

	c := newTestClient(t,
		`{"results":[{"name":"Oslo","latitude":59.9,"longitude":10.7}]}`,
		`{"current":{"temperature_2m":-3.0,"weather_code":99}}`,
	)
	report, err := c.Current(context.Background(), "oslo")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if report.Conditions != "conditions" {
		t.Errorf("unknown WMO code should fall back to generic description, got %q", report.Conditions)
	}
}

func TestTool_ReturnsJSONReport(t *testing.T) {
	t.Parallel()

	c := newTestClient(t,
		`{"results":[{"name":"Berlin","latitude":52.52,"longitude":13.41}]}`,
		forecastSunny,
	)
	tool := Tools(c)[0]
	out, err := tool.Handler(context.Background(), `{"location": "berlin"}`)
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	var report Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Location != "Berlin" {
		t.Errorf("unexpected report: %+v", report)
	}
}
