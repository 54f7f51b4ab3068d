package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockAdapterEmitsTokenThenDone(t *testing.T) {
	a := NewMockAdapter()
	var events []StreamEvent
	err := a.StreamTurn(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "what are your hours"}},
	}, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTurn() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v, want token then done", events)
	}
	if events[0].Kind != EventToken || events[1].Kind != EventDone {
		t.Fatalf("events = %+v, want [token done]", events)
	}
}

type scriptedAdapter struct {
	delay  time.Duration
	events []StreamEvent
	err    error
}

func (s *scriptedAdapter) StreamTurn(ctx context.Context, req Request, onEvent EventHandler) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.err != nil {
		return s.err
	}
	for _, ev := range s.events {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func TestFallbackAdapterUsesPrimaryWhenFast(t *testing.T) {
	primary := &scriptedAdapter{events: []StreamEvent{
		{Kind: EventToken, Text: "hi"},
		{Kind: EventDone, FinishReason: "stop"},
	}}
	secondary := &scriptedAdapter{events: []StreamEvent{{Kind: EventToken, Text: "fallback"}}}

	fb := NewFallbackAdapter(primary, secondary)
	var events []StreamEvent
	err := fb.StreamTurn(context.Background(), Request{}, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTurn() error = %v", err)
	}
	if len(events) != 2 || events[0].Text != "hi" {
		t.Fatalf("events = %+v, want primary's tokens", events)
	}
}

func TestFallbackAdapterSwitchesOnPrimaryError(t *testing.T) {
	primary := &scriptedAdapter{err: errors.New("boom")}
	secondary := &scriptedAdapter{events: []StreamEvent{
		{Kind: EventToken, Text: "fallback reply"},
		{Kind: EventDone},
	}}

	fb := NewFallbackAdapter(primary, secondary)
	var events []StreamEvent
	err := fb.StreamTurn(context.Background(), Request{}, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTurn() error = %v", err)
	}
	if len(events) != 2 || events[0].Text != "fallback reply" {
		t.Fatalf("events = %+v, want fallback's tokens", events)
	}
}

func TestFallbackAdapterSwitchesOnFirstTokenTimeout(t *testing.T) {
	original := fallbackFirstTokenTimeout
	fallbackFirstTokenTimeout = 20 * time.Millisecond
	defer func() { fallbackFirstTokenTimeout = original }()

	primary := &scriptedAdapter{delay: 200 * time.Millisecond, events: []StreamEvent{
		{Kind: EventToken, Text: "too slow"},
	}}
	secondary := &scriptedAdapter{events: []StreamEvent{
		{Kind: EventToken, Text: "fast fallback"},
		{Kind: EventDone},
	}}

	fb := NewFallbackAdapter(primary, secondary)
	var events []StreamEvent
	err := fb.StreamTurn(context.Background(), Request{}, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTurn() error = %v", err)
	}
	if len(events) != 2 || events[0].Text != "fast fallback" {
		t.Fatalf("events = %+v, want fallback's tokens only", events)
	}
}

func TestHTTPAdapterDispatchChunkParsesToolCall(t *testing.T) {
	a := NewHTTPAdapterWithOptions("http://example.invalid", false)
	var events []StreamEvent
	done, err := a.dispatchChunk(`{"tool_call":{"name":"get_working_hours","arguments":{"day":"monday"}}}`, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("dispatchChunk() error = %v", err)
	}
	if !done {
		t.Fatal("dispatchChunk() done = false, want true after a tool call")
	}
	if len(events) != 2 || events[0].Kind != EventToolCall || events[0].ToolCall.Name != "get_working_hours" {
		t.Fatalf("events = %+v, want tool call then done", events)
	}
}

func TestHTTPAdapterDispatchChunkParsesTokenText(t *testing.T) {
	a := NewHTTPAdapterWithOptions("http://example.invalid", false)
	var events []StreamEvent
	done, err := a.dispatchChunk(`{"text":"hello there"}`, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("dispatchChunk() error = %v", err)
	}
	if done {
		t.Fatal("dispatchChunk() done = true, want false without a finish_reason")
	}
	if len(events) != 1 || events[0].Kind != EventToken || events[0].Text != "hello there" {
		t.Fatalf("events = %+v, want one token event", events)
	}
}
