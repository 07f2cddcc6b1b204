// Package rideinfo provides the "get_ride_info" built-in tool, giving the
// model read access to the live ride context.
package rideinfo

import (
	"context"

	"github.com/glydways/clyde/internal/ride"
	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/pkg/types"
)

// Tools returns the ride info tool set backed by source.
func Tools(source ride.Source) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "get_ride_info",
				Description: "Get current ride context (route, stops, ETA, cabin state). No parameters.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Handler: func(_ context.Context, _ string) (string, error) {
				return source.Context().PromptBlock(), nil
			},
		},
	}
}
