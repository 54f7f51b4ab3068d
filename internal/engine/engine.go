// Package engine implements the conversation engine (C6): it composes the
// LLM streaming client and the tool router to execute one user turn,
// enforcing the per-turn tool budget and emitting speakable fragments as
// the model streams.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frontdesk-ai/callcore/internal/llm"
	"github.com/frontdesk-ai/callcore/internal/tools"
	"github.com/frontdesk-ai/callcore/internal/tts"
)

// Role tags one entry of conversation history.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "assistant"
	RoleTool  Role = "tool-result"
)

// HistoryTurn is one sealed entry in a call's conversation history. Seq is
// assigned by the call-level history log, not the engine; it is left at
// zero on turns the engine hands back from a single RunTurn call.
type HistoryTurn struct {
	Seq         int
	Role        Role
	Content     string
	ToolName    string
	Interrupted bool
}

// SpeakFunc delivers one ready-to-synthesize fragment to the TTS stream.
type SpeakFunc func(ctx context.Context, fragment string) error

// FlushFunc signals the TTS stream that the assistant turn's text is
// complete and buffered audio should be flushed to the carrier.
type FlushFunc func(ctx context.Context) error

// Request describes one user turn to execute.
type Request struct {
	TenantID      string
	CallID        string
	TurnID        string
	SystemPrompt  string
	History       []HistoryTurn
	UserUtterance string
	ToolBudget    int
	ToolLimits    tools.Limits
	Speak         SpeakFunc
	Flush         FlushFunc
}

// Result is what RunTurn returns; the caller appends NewTurns to the call's
// history.
type Result struct {
	NewTurns    []HistoryTurn
	ToolCalls   int
	Interrupted bool
}

// Engine composes an LLM adapter and a tool router to execute turns.
type Engine struct {
	llm    llm.Adapter
	router *tools.Router
}

func New(adapter llm.Adapter, router *tools.Router) *Engine {
	return &Engine{llm: adapter, router: router}
}

// RunTurn executes the algorithm in §4.6: stream generation, route tokens
// to Speak, route tool-call requests to the router (injecting the tenant
// id and enforcing the tool budget), and loop until the model signals Done
// without a further tool call. If ctx is cancelled mid-stream (barge-in or
// call end), the pending outbound buffer is discarded and the partial turn
// is reported via Interrupted rather than committed to history.
func (e *Engine) RunTurn(ctx context.Context, req Request) (Result, error) {
	history := append([]HistoryTurn(nil), req.History...)
	history = append(history, HistoryTurn{Role: RoleUser, Content: req.UserUtterance})

	var newTurns []HistoryTurn
	collector := tts.NewFlushCollector()
	var assistantText strings.Builder
	toolCallsUsed := 0
	// toolDeadline bounds the combined time of every tool call in this
	// turn; it is set when the first tool call starts.
	var toolDeadline time.Time

	for {
		var pendingCall *llm.ToolCallRequest

		err := e.llm.StreamTurn(ctx, llm.Request{
			TenantID:  req.TenantID,
			CallID:    req.CallID,
			TurnID:    req.TurnID,
			Messages:  buildMessages(req.SystemPrompt, history),
			ToolNames: toolNames(),
		}, func(ev llm.StreamEvent) error {
			switch ev.Kind {
			case llm.EventToken:
				assistantText.WriteString(ev.Text)
				for _, fragment := range collector.Consume(ev.Text) {
					if req.Speak != nil {
						if err := req.Speak(ctx, fragment); err != nil {
							return err
						}
					}
				}
			case llm.EventToolCall:
				call := ev.ToolCall
				pendingCall = &call
			}
			return nil
		})

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{NewTurns: nil, ToolCalls: toolCallsUsed, Interrupted: true}, nil
			}
			return Result{}, err
		}

		if pendingCall == nil {
			break
		}

		toolCallsUsed++
		var result tools.Result
		if toolCallsUsed > maxCalls(req.ToolBudget) {
			result = tools.BudgetExhausted()
		} else {
			if toolDeadline.IsZero() {
				total := req.ToolLimits.TotalTimeout
				if total <= 0 {
					total = time.Second
				}
				toolDeadline = time.Now().Add(total)
			}
			toolCtx, cancelTool := context.WithDeadline(ctx, toolDeadline)
			result = e.router.Invoke(toolCtx, tools.Name(pendingCall.Name), pendingCall.Args, req.TenantID, req.ToolLimits)
			cancelTool()
		}

		history = append(history,
			HistoryTurn{Role: RoleAgent, ToolName: pendingCall.Name},
			HistoryTurn{Role: RoleTool, ToolName: pendingCall.Name, Content: toolResultText(result)},
		)
		newTurns = append(newTurns,
			HistoryTurn{Role: RoleAgent, ToolName: pendingCall.Name},
			HistoryTurn{Role: RoleTool, ToolName: pendingCall.Name, Content: toolResultText(result)},
		)

		if ctx.Err() != nil {
			return Result{NewTurns: nil, ToolCalls: toolCallsUsed, Interrupted: true}, nil
		}
	}

	for _, fragment := range collector.Finalize() {
		if req.Speak != nil {
			if err := req.Speak(ctx, fragment); err != nil {
				return Result{}, err
			}
		}
	}
	if req.Flush != nil {
		if err := req.Flush(ctx); err != nil {
			return Result{}, err
		}
	}

	newTurns = append(newTurns, HistoryTurn{Role: RoleAgent, Content: assistantText.String()})
	return Result{NewTurns: newTurns, ToolCalls: toolCallsUsed}, nil
}

func maxCalls(budget int) int {
	if budget <= 0 {
		return 2
	}
	return budget
}

func buildMessages(systemPrompt string, history []HistoryTurn) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return messages
}

func toolNames() []string {
	names := make([]string, 0, len(tools.Names))
	for _, n := range tools.Names {
		names = append(names, string(n))
	}
	return names
}

func toolResultText(result tools.Result) string {
	if result.Outcome == tools.OutcomeOK {
		return "ok"
	}
	if result.Detail != "" {
		return string(result.Outcome) + ": " + result.Detail
	}
	return string(result.Outcome)
}
