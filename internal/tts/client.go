package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures the websocket-backed TTS provider.
type Config struct {
	APIKey    string
	WSBaseURL string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.WSBaseURL) == "" {
		c.WSBaseURL = "wss://api.callcore-tts.example/v1/stream"
	}
	return c
}

// WSProvider dials the documented streaming synthesis endpoint per call.
type WSProvider struct {
	cfg Config
}

func NewWSProvider(cfg Config) *WSProvider {
	return &WSProvider{cfg: cfg.withDefaults()}
}

func (p *WSProvider) StartStream(ctx context.Context, callID string, opts StreamOptions) (Stream, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 8000
	}

	u, err := url.Parse(p.cfg.WSBaseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", opts.Voice)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("container", "none")
	u.RawQuery = q.Encode()

	header := map[string][]string{"Authorization": {"Bearer " + p.cfg.APIKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	events := make(chan Event, 256)
	s := &wsStream{conn: conn, events: events}
	go s.readLoop()
	return s, nil
}

type speakRequest struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wsStream struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	events chan Event
	closed bool
}

func (s *wsStream) SpeakFragment(ctx context.Context, text string) error {
	return s.writeJSON(ctx, speakRequest{Type: "Speak", Text: text})
}

func (s *wsStream) Flush(ctx context.Context) error {
	return s.writeJSON(ctx, speakRequest{Type: "Flush"})
}

func (s *wsStream) writeJSON(ctx context.Context, v any) error {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	deadline := time.Now().Add(5 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsStream) Events() <-chan Event { return s.events }

func (s *wsStream) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.emit(Event{Type: EventError, Code: "connection_lost", Retryable: true, Detail: err.Error()})
			s.closeEvents()
			return
		}
		if msgType == websocket.BinaryMessage {
			s.emit(Event{Type: EventAudio, AudioBase64: base64.StdEncoding.EncodeToString(data)})
			continue
		}

		var wire struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			continue
		}
		switch wire.Type {
		case "Flushed":
			s.emit(Event{Type: EventFlushed})
		case "ERR":
			s.emit(Event{Type: EventError, Code: "provider_error", Retryable: true})
		}
	}
}

func (s *wsStream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *wsStream) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *wsStream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn.Close()
}
