package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPAdapter forwards requests to a streaming chat-completion endpoint,
// accepting SSE, NDJSON, or a single JSON/plain-text response.
type HTTPAdapter struct {
	url          string
	client       *http.Client
	streamStrict bool
}

func NewHTTPAdapter(url string) *HTTPAdapter {
	return NewHTTPAdapterWithOptions(url, false)
}

func NewHTTPAdapterWithOptions(url string, streamStrict bool) *HTTPAdapter {
	return &HTTPAdapter{
		url:          strings.TrimSpace(url),
		streamStrict: streamStrict,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

type httpRequestBody struct {
	TenantID string    `json:"tenant_id"`
	CallID   string    `json:"call_id"`
	TurnID   string    `json:"turn_id"`
	Messages []Message `json:"messages"`
	Tools    []string  `json:"tools,omitempty"`
}

func (a *HTTPAdapter) StreamTurn(ctx context.Context, req Request, onEvent EventHandler) error {
	payload, err := json.Marshal(httpRequestBody{
		TenantID: req.TenantID,
		CallID:   req.CallID,
		TurnID:   req.TurnID,
		Messages: req.Messages,
		Tools:    req.ToolNames,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("llm http status %d: %s", res.StatusCode, string(body))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") {
		return a.consumeSSE(res.Body, onEvent)
	}
	if strings.Contains(ct, "application/x-ndjson") || strings.Contains(ct, "application/ndjson") {
		return a.consumeNDJSON(res.Body, onEvent)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return a.consumeSingle(body, onEvent)
}

func (a *HTTPAdapter) consumeSingle(body []byte, onEvent EventHandler) error {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return onEvent(StreamEvent{Kind: EventDone})
		}
		if err := onEvent(StreamEvent{Kind: EventToken, Text: text}); err != nil {
			return err
		}
		return onEvent(StreamEvent{Kind: EventDone})
	}

	if tc, ok := extractToolCall(obj); ok {
		if err := onEvent(StreamEvent{Kind: EventToolCall, ToolCall: tc}); err != nil {
			return err
		}
		return onEvent(StreamEvent{Kind: EventDone})
	}

	text := extractText(obj)
	if text != "" {
		if err := onEvent(StreamEvent{Kind: EventToken, Text: text}); err != nil {
			return err
		}
	}
	return onEvent(StreamEvent{Kind: EventDone, FinishReason: extractFinishReason(obj)})
}

func (a *HTTPAdapter) consumeNDJSON(body io.Reader, onEvent EventHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		done, err := a.dispatchChunk(line, onEvent)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return onEvent(StreamEvent{Kind: EventDone})
}

func (a *HTTPAdapter) consumeSSE(body io.Reader, onEvent EventHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var dataLines []string
	flushEvent := func() (bool, error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		return a.dispatchChunk(payload, onEvent)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			done, err := flushEvent()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field := line
		value := ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			field = line[:idx]
			value = line[idx+1:]
			if strings.HasPrefix(value, " ") {
				value = value[1:]
			}
		}
		if field == "data" {
			dataLines = append(dataLines, value)
		}
	}

	done, err := flushEvent()
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return onEvent(StreamEvent{Kind: EventDone})
}

// dispatchChunk parses one SSE/NDJSON payload and emits the corresponding
// token or tool-call event. It returns done=true once the stream has
// signalled completion (a "[DONE]" sentinel or a finish_reason field).
func (a *HTTPAdapter) dispatchChunk(payload string, onEvent EventHandler) (done bool, err error) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return false, nil
	}
	if strings.EqualFold(p, "[DONE]") {
		return true, onEvent(StreamEvent{Kind: EventDone})
	}

	var obj map[string]any
	if jsonErr := json.Unmarshal([]byte(p), &obj); jsonErr != nil {
		if a.streamStrict {
			return false, fmt.Errorf("invalid stream payload: %s", summarizePayload(p))
		}
		return false, onEvent(StreamEvent{Kind: EventToken, Text: p})
	}

	if tc, ok := extractToolCall(obj); ok {
		if err := onEvent(StreamEvent{Kind: EventToolCall, ToolCall: tc}); err != nil {
			return false, err
		}
		return true, onEvent(StreamEvent{Kind: EventDone})
	}

	if text := strings.TrimSpace(extractText(obj)); text != "" {
		if err := onEvent(StreamEvent{Kind: EventToken, Text: text}); err != nil {
			return false, err
		}
	}

	if reason := extractFinishReason(obj); reason != "" {
		return true, onEvent(StreamEvent{Kind: EventDone, FinishReason: reason})
	}
	return false, nil
}

func summarizePayload(p string) string {
	const maxLen = 200
	p = strings.TrimSpace(p)
	if len(p) <= maxLen {
		return p
	}
	return p[:maxLen] + "...(truncated)"
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func extractFinishReason(obj map[string]any) string {
	if v, ok := obj["finish_reason"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func extractToolCall(obj map[string]any) (ToolCallRequest, bool) {
	raw, ok := obj["tool_call"]
	if !ok {
		return ToolCallRequest{}, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return ToolCallRequest{}, false
	}
	name, _ := m["name"].(string)
	if strings.TrimSpace(name) == "" {
		return ToolCallRequest{}, false
	}
	args, _ := m["arguments"].(map[string]any)
	return ToolCallRequest{Name: name, Args: args}, true
}
