package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPSMSSink posts a confirmation text to an external SMS gateway. No
// SMS provider SDK appears anywhere in the corpus this was built from, so
// this stays a plain JSON POST the way the LLM HTTP adapter talks to its
// own external endpoint.
type HTTPSMSSink struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSMSSink(url, apiKey string) *HTTPSMSSink {
	return &HTTPSMSSink{
		url:    strings.TrimSpace(url),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsRequestBody struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *HTTPSMSSink) SendSMS(ctx context.Context, msg SMSMessage) error {
	if s.url == "" {
		return fmt.Errorf("sms sink: no endpoint configured")
	}
	payload, err := json.Marshal(smsRequestBody{To: msg.ToPhone, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms: unexpected status %d", resp.StatusCode)
	}
	return nil
}
