// Package cabin provides the built-in tools that drive the vehicle's cabin
// systems through the cabin control API.
//
// Three tools are exported via [Tools]:
//   - "set_lights"  — brightness and color temperature.
//   - "set_climate" — temperature and fan speed.
//   - "set_audio"   — play, pause, or stop cabin music.
//
// Every handler returns the full cabin state after the change, JSON-encoded,
// so the model can confirm what it actually did.
package cabin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/internal/vehicle"
	"github.com/glydways/clyde/pkg/types"
)

// setLightsArgs is the JSON-decoded input for the "set_lights" tool.
type setLightsArgs struct {
	Brightness int    `json:"brightness"`
	ColorTemp  string `json:"color_temp"`
}

// setClimateArgs is the JSON-decoded input for the "set_climate" tool.
type setClimateArgs struct {
	TempF    int    `json:"temp_f"`
	FanSpeed string `json:"fan_speed"`
}

// setAudioArgs is the JSON-decoded input for the "set_audio" tool.
type setAudioArgs struct {
	Action string `json:"action"`
	Genre  string `json:"genre"`
}

// Tools returns the cabin control tool set backed by client.
func Tools(client *vehicle.Client) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "set_lights",
				Description: "Set cabin lighting brightness (0-100) and color temperature (warm, neutral, cool).",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"brightness": map[string]any{"type": "integer", "description": "0-100"},
						"color_temp": map[string]any{"type": "string", "description": "warm | neutral | cool"},
					},
					"required": []string{"brightness", "color_temp"},
				},
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a setLightsArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				state, err := client.SetLights(ctx, &a.Brightness, &a.ColorTemp)
				if err != nil {
					return "", err
				}
				return encode(state)
			},
		},
		{
			Definition: types.ToolDefinition{
				Name:        "set_climate",
				Description: "Set cabin temperature (F) and fan speed (off, low, medium, high, auto).",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"temp_f":    map[string]any{"type": "integer", "description": "Temperature in Fahrenheit"},
						"fan_speed": map[string]any{"type": "string", "description": "off | low | medium | high | auto"},
					},
					"required": []string{"temp_f", "fan_speed"},
				},
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a setClimateArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				state, err := client.SetClimate(ctx, &a.TempF, &a.FanSpeed)
				if err != nil {
					return "", err
				}
				return encode(state)
			},
		},
		{
			Definition: types.ToolDefinition{
				Name:        "set_audio",
				Description: "Play, pause, or stop cabin music through the vehicle speakers. Call with action='play' and optional genre (e.g. jazz, classical, lo-fi).",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action": map[string]any{"type": "string", "description": "play | pause | stop"},
						"genre":  map[string]any{"type": "string", "description": "Optional: ambient, jazz, classical, lo-fi, or other genre when action is play"},
					},
					"required": []string{"action"},
				},
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a setAudioArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				var genre *string
				if a.Genre != "" {
					genre = &a.Genre
				}
				state, err := client.SetAudio(ctx, a.Action, genre)
				if err != nil {
					return "", err
				}
				return encode(state)
			},
		},
	}
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
