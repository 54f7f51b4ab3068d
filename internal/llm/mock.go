package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no reasoning
// backend is configured. Err, if set, is returned by every StreamTurn call
// instead of a reply, for exercising provider-failure handling in tests.
type MockAdapter struct {
	Err error
}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamTurn(ctx context.Context, req Request, onEvent EventHandler) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if a.Err != nil {
		return a.Err
	}

	text := buildMockReply(req)
	if text != "" {
		if err := onEvent(StreamEvent{Kind: EventToken, Text: text}); err != nil {
			return err
		}
	}
	return onEvent(StreamEvent{Kind: EventDone, FinishReason: "stop"})
}

func buildMockReply(req Request) string {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "I'm listening, go ahead."
	}
	return fmt.Sprintf("Got it: %s", last)
}
