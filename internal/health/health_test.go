package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glydways/clyde/internal/sessionlog"
	"github.com/glydways/clyde/internal/vehicle"
)

func doRequest(t *testing.T, h *Handler, path string) (*http.Response, probeResult) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var res probeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, res
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	resp, res := doRequest(t, New(), "/healthz")
	if resp.StatusCode != http.StatusOK || res.Status != "ok" {
		t.Errorf("expected 200 ok, got %d %q", resp.StatusCode, res.Status)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "a", Check: func(context.Context) error { return nil }},
		Checker{Name: "b", Check: func(context.Context) error { return nil }},
	)
	resp, res := doRequest(t, h, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if res.Checks["a"] != "ok" || res.Checks["b"] != "ok" {
		t.Errorf("unexpected checks: %v", res.Checks)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "good", Check: func(context.Context) error { return nil }},
		Checker{Name: "bad", Check: func(context.Context) error { return errors.New("down") }},
	)
	resp, res := doRequest(t, h, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	if res.Status != "fail" {
		t.Errorf("expected fail status, got %q", res.Status)
	}
	if res.Checks["bad"] != "fail: down" {
		t.Errorf("unexpected bad check result: %q", res.Checks["bad"])
	}
}

func TestVehicleChecker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(vehicle.NewServer(nil).Handler())
	t.Cleanup(srv.Close)

	c := Vehicle(vehicle.NewClient(srv.URL))
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("expected healthy vehicle, got %v", err)
	}

	down := Vehicle(vehicle.NewClient("http://127.0.0.1:1"))
	if err := down.Check(context.Background()); err == nil {
		t.Error("expected failure for unreachable vehicle API")
	}
}

func TestSessionLogCheckerDisabledPasses(t *testing.T) {
	t.Parallel()

	c := SessionLog(sessionlog.NewNoop())
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("disabled session log should pass, got %v", err)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
