package vehicle

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/glydways/clyde/internal/ride"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(NewServer(nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestClient_StateReturnsDefaults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	state, err := c.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != ride.DefaultCabinState() {
		t.Errorf("expected power-on defaults, got %+v", state)
	}
}

func TestClient_SetLights(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	state, err := c.SetLights(ctx, intPtr(30), strPtr("warm"))
	if err != nil {
		t.Fatalf("SetLights: %v", err)
	}
	if state.Lights.Brightness != 30 || state.Lights.ColorTemp != "warm" {
		t.Errorf("unexpected lights state: %+v", state.Lights)
	}

	// Partial update: only brightness, color temperature untouched.
	state, err = c.SetLights(ctx, intPtr(80), nil)
	if err != nil {
		t.Fatalf("SetLights: %v", err)
	}
	if state.Lights.Brightness != 80 || state.Lights.ColorTemp != "warm" {
		t.Errorf("partial update clobbered state: %+v", state.Lights)
	}
}

func TestClient_SetLightsRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	if _, err := c.SetLights(context.Background(), intPtr(150), nil); err == nil {
		t.Fatal("expected error for brightness 150")
	}
	if _, err := c.SetLights(context.Background(), nil, strPtr("purple")); err == nil {
		t.Fatal("expected error for color_temp purple")
	}
}

func TestClient_SetClimate(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	state, err := c.SetClimate(context.Background(), intPtr(68), strPtr("low"))
	if err != nil {
		t.Fatalf("SetClimate: %v", err)
	}
	if state.Climate.TempF != 68 || state.Climate.FanSpeed != "low" {
		t.Errorf("unexpected climate state: %+v", state.Climate)
	}

	if _, err := c.SetClimate(context.Background(), intPtr(40), nil); err == nil {
		t.Fatal("expected error for temp_f 40")
	}
}

func TestClient_AudioLifecycle(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	state, err := c.SetAudio(ctx, "play", strPtr("jazz"))
	if err != nil {
		t.Fatalf("SetAudio(play): %v", err)
	}
	if state.Audio.Action != "playing" || state.Audio.Genre != "jazz" {
		t.Errorf("unexpected audio state after play: %+v", state.Audio)
	}

	state, err = c.SetAudio(ctx, "pause", nil)
	if err != nil {
		t.Fatalf("SetAudio(pause): %v", err)
	}
	if state.Audio.Action != "paused" || state.Audio.Genre != "jazz" {
		t.Errorf("pause should keep the genre: %+v", state.Audio)
	}

	state, err = c.SetAudio(ctx, "stop", nil)
	if err != nil {
		t.Fatalf("SetAudio(stop): %v", err)
	}
	if state.Audio.Action != "idle" || state.Audio.Genre != "" {
		t.Errorf("stop should clear the genre: %+v", state.Audio)
	}

	if _, err := c.SetAudio(ctx, "rewind", nil); err == nil {
		t.Fatal("expected error for unknown action")
	}
}
