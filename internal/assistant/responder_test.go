package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/glydways/clyde/internal/ride"
	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/pkg/provider/llm"
	llmmock "github.com/glydways/clyde/pkg/provider/llm/mock"
	"github.com/glydways/clyde/pkg/types"
)

func testSource() ride.Source {
	return ride.NewMockSource(ride.WithRoute("Downtown Loop", "Main St", "Civic Center"))
}

func testRegistry(handler func(ctx context.Context, args string) (string, error)) *tools.Registry {
	return tools.NewRegistry([][]tools.Tool{{
		{
			Definition: types.ToolDefinition{Name: "set_lights", Description: "set lights"},
			Handler:    handler,
		},
	}})
}

func TestRespond_PlainText(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{Content: "We arrive in about three minutes."},
	}}
	r := New(provider, testRegistry(nil), testSource())

	got, err := r.Respond(context.Background(), "when do we get there", nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "We arrive in about three minutes." {
		t.Errorf("unexpected reply: %q", got)
	}

	req := provider.CompleteCalls[0].Req
	if req.SystemPrompt == "" || !strings.Contains(req.SystemPrompt, "Downtown Loop") {
		t.Error("system prompt should embed the ride context JSON")
	}
	if !strings.Contains(req.SystemPrompt, "do not repeat these): none") {
		t.Error("system prompt should list offers as none")
	}
	if req.Messages[len(req.Messages)-1].Content != "when do we get there" {
		t.Error("user message should be the last message")
	}
}

func TestRespond_ExecutesToolAndLoops(t *testing.T) {
	t.Parallel()

	var gotArgs string
	registry := testRegistry(func(_ context.Context, args string) (string, error) {
		gotArgs = args
		return `{"lights":{"brightness":30}}`, nil
	})
	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{{ID: "call-1", Name: "set_lights", Arguments: `{"brightness":30,"color_temp":"warm"}`}}},
		{Content: "Dimmed the lights for you."},
	}}
	r := New(provider, registry, testSource())

	got, err := r.Respond(context.Background(), "dim the lights", nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "Dimmed the lights for you." {
		t.Errorf("unexpected reply: %q", got)
	}
	if !strings.Contains(gotArgs, "warm") {
		t.Errorf("tool should receive the model's arguments, got %q", gotArgs)
	}

	// The second completion must carry the tool result back to the model.
	second := provider.CompleteCalls[1].Req
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call-1" {
		t.Errorf("expected trailing tool result message, got role=%q id=%q", last.Role, last.ToolCallID)
	}
	if !strings.Contains(last.Content, "brightness") {
		t.Errorf("tool result content missing: %q", last.Content)
	}
}

func TestRespond_ToolFailureReportedToModel(t *testing.T) {
	t.Parallel()

	registry := testRegistry(func(context.Context, string) (string, error) {
		return "", errors.New("vehicle API unreachable")
	})
	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{{ID: "call-1", Name: "set_lights", Arguments: `{}`}}},
		{Content: "I couldn't reach the lights just now."},
	}}
	r := New(provider, registry, testSource())

	got, err := r.Respond(context.Background(), "dim the lights", nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got == "" {
		t.Fatal("expected a spoken reply after a failed tool")
	}

	second := provider.CompleteCalls[1].Req
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content, "error") {
		t.Errorf("tool failure should be encoded as an error result, got %q", last.Content)
	}
}

func TestRespond_OffersListedInPrompt(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{{Content: "ok"}}}
	r := New(provider, testRegistry(nil), testSource())

	if _, err := r.Respond(context.Background(), "hi", []string{"boarding", "nighttime"}); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	prompt := provider.CompleteCalls[0].Req.SystemPrompt
	if !strings.Contains(prompt, "boarding, nighttime") {
		t.Error("system prompt should list offers already made")
	}
}

func TestRespond_ConversationCarriesOver(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{Content: "first reply"},
		{Content: "second reply"},
	}}
	r := New(provider, testRegistry(nil), testSource())

	if _, err := r.Respond(context.Background(), "first", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := r.Respond(context.Background(), "second", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	second := provider.CompleteCalls[1].Req
	// user, assistant, user
	if len(second.Messages) != 3 {
		t.Fatalf("expected 3 messages on the second turn, got %d", len(second.Messages))
	}
	if second.Messages[1].Content != "first reply" {
		t.Errorf("history should carry the first reply, got %q", second.Messages[1].Content)
	}

	r.Reset()
	if _, err := r.Respond(context.Background(), "third", nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	third := provider.CompleteCalls[2].Req
	if len(third.Messages) != 1 {
		t.Errorf("Reset should clear the history, got %d messages", len(third.Messages))
	}
}

func TestRespond_CompletionErrorPropagates(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	r := New(provider, testRegistry(nil), testSource())
	if _, err := r.Respond(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected completion error")
	}
}

func TestRespond_ToolLoopBounded(t *testing.T) {
	t.Parallel()

	registry := testRegistry(func(context.Context, string) (string, error) {
		return "{}", nil
	})
	// The mock repeats its last response when exhausted, so the model asks
	// for the same tool forever.
	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{{ID: "call-1", Name: "set_lights", Arguments: `{}`}}},
	}}
	r := New(provider, registry, testSource())

	if _, err := r.Respond(context.Background(), "loop forever", nil); err == nil {
		t.Fatal("expected error when the tool loop never settles")
	}
	if len(provider.CompleteCalls) != maxToolRounds {
		t.Errorf("expected exactly %d completion rounds, got %d", maxToolRounds, len(provider.CompleteCalls))
	}
}
