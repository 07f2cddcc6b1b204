// Package displaycard provides the "send_display" built-in tool, letting the
// model push layout cards to the cabin display.
package displaycard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glydways/clyde/internal/display"
	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/pkg/types"
)

// sendArgs is the JSON-decoded input for the "send_display" tool.
type sendArgs struct {
	Layout string         `json:"layout"`
	Data   map[string]any `json:"data"`
}

// sendResult is the JSON-encoded output of the "send_display" tool.
type sendResult struct {
	OK     bool   `json:"ok"`
	Layout string `json:"layout"`
}

// Tools returns the display tool set backed by srv.
func Tools(srv *display.Server) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "send_display",
				Description: "Update the cabin display. layout: idle | speaking | status | arrival. data: dict of layout-specific fields.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"layout": map[string]any{"type": "string", "description": "idle | speaking | status | arrival"},
						"data":   map[string]any{"type": "object", "description": "Layout-specific key-value pairs"},
					},
					"required": []string{"layout", "data"},
				},
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a sendArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				if a.Layout == "" {
					a.Layout = "idle"
				}
				srv.SendLayout(ctx, a.Layout, a.Data)
				b, err := json.Marshal(sendResult{OK: true, Layout: a.Layout})
				if err != nil {
					return "", fmt.Errorf("encode result: %w", err)
				}
				return string(b), nil
			},
		},
	}
}
