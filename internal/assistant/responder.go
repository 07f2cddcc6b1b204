// Package assistant turns passenger transcripts into spoken replies. The
// [Responder] injects the live ride context into the system prompt, lets the
// model call cabin tools, and loops until it produces text to speak.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/internal/ride"
	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/pkg/provider/llm"
	"github.com/glydways/clyde/pkg/types"
)

const (
	// maxToolRounds bounds the completion/tool-execution loop of one turn.
	maxToolRounds = 8

	// defaultTurnTimeout bounds one whole turn including all tool calls.
	defaultTurnTimeout = 60 * time.Second

	// defaultMaxTokens caps the spoken reply; two sentences do not need more.
	defaultMaxTokens = 1024
)

// systemPromptTemplate is completed with the ride context JSON and the list
// of proactive offers already made this ride.
const systemPromptTemplate = `You are the in-cabin voice assistant for a small autonomous public transit vehicle. You are calm, brief, and co-pilot in tone. Keep responses to 2 sentences max unless the user asks for more. Your replies are spoken aloud; use minimal punctuation so the voice does not pause or read punctuation oddly. Do not ask follow-up questions unless strictly necessary. When you take an action (lights, climate, audio), confirm briefly in speech and use send_display to push a status card.

Current ride context (JSON):
%s

Proactive offers already made this ride (do not repeat these): %s

When taking an action, always call send_display with layout "status" and a short title/detail so the passenger sees confirmation on the display.

When the user asks about weather or temperature, call get_weather (with optional location) and report the result briefly.
When the user asks to play music (e.g. 'play jazz', 'put on music'), use set_audio with action 'play' and the requested genre.

Important: After every tool call you must reply with at least one short spoken sentence. After get_weather, say the temperature and conditions. After set_audio (play), reply with only 'Playing.' or 'Done.' — nothing else (no ride commentary like 'enjoy the music on your ride'). If a tool returns an error, say that in one short sentence. Never end your turn with no text after using a tool.

Accuracy: Your spoken reply must match the actual tool result. If a tool returns an error, do not claim success. Say what the tool reported in one short sentence.`

// Responder holds one conversation with the passenger cabin.
type Responder struct {
	llm      llm.Provider
	registry *tools.Registry
	source   ride.Source

	turnTimeout time.Duration
	maxTokens   int
	temperature float64

	log     *slog.Logger
	metrics *observe.Metrics

	mu           sync.Mutex
	conversation []types.Message
}

// Option is a functional option for configuring a Responder.
type Option func(*Responder)

// WithTurnTimeout bounds one whole turn including tool calls.
func WithTurnTimeout(d time.Duration) Option {
	return func(r *Responder) { r.turnTimeout = d }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(r *Responder) { r.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Responder) { r.log = log }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}

// New creates a Responder over provider with the given tool registry and
// ride context source.
func New(provider llm.Provider, registry *tools.Registry, source ride.Source, opts ...Option) *Responder {
	r := &Responder{
		llm:         provider,
		registry:    registry,
		source:      source,
		turnTimeout: defaultTurnTimeout,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Respond runs one conversation turn for userMessage and returns the text to
// speak. Tool calls requested by the model are executed against the registry
// and fed back until the model finishes with text. An empty return with a
// nil error means the model had nothing to say.
func (r *Responder) Respond(ctx context.Context, userMessage string, offersMade []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	system := r.buildSystemPrompt(r.source.Context(), offersMade)
	msgs := append(append([]types.Message(nil), r.conversation...), types.Message{
		Role:    "user",
		Content: userMessage,
	})

	toolsExecuted := 0
	for round := 0; round < maxToolRounds; round++ {
		start := time.Now()
		resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
			Messages:     msgs,
			Tools:        r.registry.Definitions(),
			SystemPrompt: system,
			MaxTokens:    r.maxTokens,
			Temperature:  r.temperature,
		})
		r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			r.metrics.RecordProviderError(ctx, "llm", "complete")
			return "", fmt.Errorf("assistant: completion: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			msgs = append(msgs, types.Message{Role: "assistant", Content: resp.Content})
			r.conversation = msgs
			text := strings.TrimSpace(resp.Content)
			if text == "" && toolsExecuted > 0 {
				r.log.Warn("model ended turn with no text after tools", "tools_executed", toolsExecuted)
			}
			return text, nil
		}

		msgs = append(msgs, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, err := r.registry.Execute(ctx, call.Name, call.Arguments)
			toolsExecuted++
			if err != nil {
				r.log.Warn("tool failed", "tool", call.Name, "error", err)
				result = encodeToolError(err)
			}
			msgs = append(msgs, types.Message{
				Role:       "tool",
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	r.conversation = msgs
	return "", fmt.Errorf("assistant: tool loop did not settle within %d rounds", maxToolRounds)
}

// Reset discards the conversation history, starting a fresh session.
func (r *Responder) Reset() {
	r.mu.Lock()
	r.conversation = nil
	r.mu.Unlock()
}

// buildSystemPrompt completes the template with the live ride context and
// the proactive offers already made.
func (r *Responder) buildSystemPrompt(rc ride.Context, offersMade []string) string {
	contextJSON, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		contextJSON = []byte("{}")
	}
	offers := "none"
	if len(offersMade) > 0 {
		offers = strings.Join(offersMade, ", ")
	}
	return fmt.Sprintf(systemPromptTemplate, contextJSON, offers)
}

// encodeToolError renders a tool failure as a JSON tool result so the model
// can report it instead of hallucinating success.
func encodeToolError(err error) string {
	b, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return `{"error": "tool failed"}`
	}
	return string(b)
}
