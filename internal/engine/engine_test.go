package engine

import (
	"context"
	"testing"

	"github.com/frontdesk-ai/callcore/internal/llm"
	"github.com/frontdesk-ai/callcore/internal/tools"
)

type scriptedAdapter struct {
	scripts [][]llm.StreamEvent
	call    int
}

func (s *scriptedAdapter) StreamTurn(ctx context.Context, req llm.Request, onEvent llm.EventHandler) error {
	if s.call >= len(s.scripts) {
		return onEvent(llm.StreamEvent{Kind: llm.EventDone, FinishReason: "stop"})
	}
	script := s.scripts[s.call]
	s.call++
	for _, ev := range script {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func TestRunTurnPlainTextNoTools(t *testing.T) {
	adapter := &scriptedAdapter{scripts: [][]llm.StreamEvent{
		{
			{Kind: llm.EventToken, Text: "We're open 9 to 5."},
			{Kind: llm.EventDone, FinishReason: "stop"},
		},
	}}
	e := New(adapter, tools.NewRouter(tools.NewMockStore()))

	var spoken []string
	flushed := false
	result, err := e.RunTurn(context.Background(), Request{
		TenantID:      "tenant-1",
		UserUtterance: "what are your hours",
		Speak: func(_ context.Context, fragment string) error {
			spoken = append(spoken, fragment)
			return nil
		},
		Flush: func(_ context.Context) error {
			flushed = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.ToolCalls != 0 {
		t.Fatalf("ToolCalls = %d, want 0", result.ToolCalls)
	}
	if len(spoken) == 0 {
		t.Fatal("expected at least one spoken fragment")
	}
	if !flushed {
		t.Fatal("expected Flush to be called")
	}
	if len(result.NewTurns) != 1 || result.NewTurns[0].Role != RoleAgent {
		t.Fatalf("NewTurns = %+v, want one assistant turn", result.NewTurns)
	}
}

func TestRunTurnInvokesToolAndResumes(t *testing.T) {
	store := tools.NewMockStore()
	store.Hours = tools.WorkingHours{ByDay: map[string]string{"monday": "9-5"}}

	adapter := &scriptedAdapter{scripts: [][]llm.StreamEvent{
		{
			{Kind: llm.EventToolCall, ToolCall: llm.ToolCallRequest{Name: "get_working_hours"}},
			{Kind: llm.EventDone},
		},
		{
			{Kind: llm.EventToken, Text: "We're open Monday 9 to 5."},
			{Kind: llm.EventDone, FinishReason: "stop"},
		},
	}}
	e := New(adapter, tools.NewRouter(store))

	result, err := e.RunTurn(context.Background(), Request{
		TenantID:      "tenant-1",
		UserUtterance: "when are you open",
		ToolBudget:    2,
		Speak:         func(context.Context, string) error { return nil },
		Flush:         func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.ToolCalls != 1 {
		t.Fatalf("ToolCalls = %d, want 1", result.ToolCalls)
	}
	// Two tool turns (assistant call + tool result) plus the final assistant turn.
	if len(result.NewTurns) != 3 {
		t.Fatalf("NewTurns = %+v, want 3 entries", result.NewTurns)
	}
}

func TestRunTurnBudgetExhaustionEmitsSyntheticResult(t *testing.T) {
	store := tools.NewMockStore()
	adapter := &scriptedAdapter{scripts: [][]llm.StreamEvent{
		{{Kind: llm.EventToolCall, ToolCall: llm.ToolCallRequest{Name: "get_business_services"}}, {Kind: llm.EventDone}},
		{{Kind: llm.EventToolCall, ToolCall: llm.ToolCallRequest{Name: "get_working_hours"}}, {Kind: llm.EventDone}},
		{{Kind: llm.EventToolCall, ToolCall: llm.ToolCallRequest{Name: "get_faqs", Args: map[string]any{"topic": "parking"}}}, {Kind: llm.EventDone}},
		{{Kind: llm.EventToken, Text: "Here's what I can tell you."}, {Kind: llm.EventDone, FinishReason: "stop"}},
	}}
	e := New(adapter, tools.NewRouter(store))

	result, err := e.RunTurn(context.Background(), Request{
		TenantID:      "tenant-1",
		UserUtterance: "tell me everything",
		ToolBudget:    2,
		Speak:         func(context.Context, string) error { return nil },
		Flush:         func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.ToolCalls != 3 {
		t.Fatalf("ToolCalls = %d, want 3 (budget enforced after, not before)", result.ToolCalls)
	}

	var sawBudgetExhausted bool
	for _, turn := range result.NewTurns {
		if turn.Role == RoleTool && turn.Content == "upstream: budget-exhausted" {
			sawBudgetExhausted = true
		}
	}
	if !sawBudgetExhausted {
		t.Fatalf("NewTurns = %+v, want a budget-exhausted tool result", result.NewTurns)
	}
}

func TestRunTurnCancellationDoesNotCommitPartialTurn(t *testing.T) {
	adapter := &cancelingAdapter{}
	e := New(adapter, tools.NewRouter(tools.NewMockStore()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.RunTurn(ctx, Request{
		TenantID:      "tenant-1",
		UserUtterance: "hello",
		Speak:         func(context.Context, string) error { return nil },
		Flush:         func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if !result.Interrupted {
		t.Fatal("Interrupted = false, want true")
	}
	if len(result.NewTurns) != 0 {
		t.Fatalf("NewTurns = %+v, want none committed on cancellation", result.NewTurns)
	}
}

type cancelingAdapter struct{}

func (cancelingAdapter) StreamTurn(ctx context.Context, _ llm.Request, _ llm.EventHandler) error {
	return ctx.Err()
}
