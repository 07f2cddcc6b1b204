package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/glydways/clyde/pkg/types"
)

func testTool(name string, handler func(context.Context, string) (string, error)) Tool {
	return Tool{
		Definition: types.ToolDefinition{Name: name, Description: name},
		Handler:    handler,
	}
}

func TestRegistry_ExecuteRoutesByName(t *testing.T) {
	t.Parallel()

	r := NewRegistry([][]Tool{
		{testTool("alpha", func(_ context.Context, args string) (string, error) {
			return `{"got":"` + args + `"}`, nil
		})},
		{testTool("beta", func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		})},
	})

	out, err := r.Execute(context.Background(), "alpha", "x")
	if err != nil {
		t.Fatalf("Execute(alpha): %v", err)
	}
	if out != `{"got":"x"}` {
		t.Errorf("unexpected result: %q", out)
	}

	if _, err := r.Execute(context.Background(), "beta", "{}"); err == nil {
		t.Fatal("expected handler error to propagate")
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if _, err := r.Execute(context.Background(), "nope", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	t.Parallel()

	nop := func(context.Context, string) (string, error) { return "{}", nil }
	r := NewRegistry([][]Tool{{
		testTool("zebra", nop),
		testTool("apple", nop),
		testTool("mango", nop),
	}})

	defs := r.Definitions()
	want := []string{"apple", "mango", "zebra"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Fatalf("expected sorted definitions %v, got %v at %d", want, d.Name, i)
		}
	}
}

func TestRegistry_DuplicateNamePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate tool name")
		}
	}()
	nop := func(context.Context, string) (string, error) { return "{}", nil }
	NewRegistry([][]Tool{{testTool("dup", nop)}, {testTool("dup", nop)}})
}
