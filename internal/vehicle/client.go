package vehicle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/glydways/clyde/internal/ride"
)

// defaultTimeout bounds one cabin control request. The endpoint is on the
// vehicle LAN; anything slower than this is a fault.
const defaultTimeout = 5 * time.Second

// Client calls the cabin control API. All mutations return the full cabin
// state after the change.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient creates a Client for the cabin control API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State fetches the current cabin state.
func (c *Client) State(ctx context.Context) (ride.CabinState, error) {
	return c.do(ctx, http.MethodGet, "/state", nil)
}

// SetLights updates cabin lighting. Nil fields are left unchanged.
func (c *Client) SetLights(ctx context.Context, brightness *int, colorTemp *string) (ride.CabinState, error) {
	return c.do(ctx, http.MethodPost, "/lights", lightsRequest{Brightness: brightness, ColorTemp: colorTemp})
}

// SetClimate updates cabin climate. Nil fields are left unchanged.
func (c *Client) SetClimate(ctx context.Context, tempF *int, fanSpeed *string) (ride.CabinState, error) {
	return c.do(ctx, http.MethodPost, "/climate", climateRequest{TempF: tempF, FanSpeed: fanSpeed})
}

// SetAudio plays, pauses or stops cabin audio. genre only applies to "play"
// and may be nil to keep the current genre.
func (c *Client) SetAudio(ctx context.Context, action string, genre *string) (ride.CabinState, error) {
	return c.do(ctx, http.MethodPost, "/audio", audioRequest{Action: action, Genre: genre})
}

// do issues one request and decodes the cabin state response.
func (c *Client) do(ctx context.Context, method, path string, body any) (ride.CabinState, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ride.CabinState{}, fmt.Errorf("vehicle: encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return ride.CabinState{}, fmt.Errorf("vehicle: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return ride.CabinState{}, fmt.Errorf("vehicle: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ride.CabinState{}, fmt.Errorf("vehicle: %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var state ride.CabinState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return ride.CabinState{}, fmt.Errorf("vehicle: decode response: %w", err)
	}
	return state, nil
}
