package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/callcore/internal/reliability"
)

// DeepgramConfig configures the Deepgram-backed provider.
type DeepgramConfig struct {
	APIKey    string
	WSBaseURL string
	// MaxReconnects bounds the number of reconnect attempts before the
	// session gives up and emits a non-retryable "provider_unavailable"
	// error event.
	MaxReconnects int
	// BufferedFrameLimit bounds the audio buffered while disconnected;
	// frames beyond it are discarded (and counted via DroppedFrames).
	BufferedFrameLimit int
}

func (c DeepgramConfig) withDefaults() DeepgramConfig {
	if strings.TrimSpace(c.WSBaseURL) == "" {
		c.WSBaseURL = "wss://api.deepgram.com"
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.BufferedFrameLimit <= 0 {
		c.BufferedFrameLimit = 250
	}
	return c
}

// DeepgramProvider dials the documented streaming endpoint per call.
type DeepgramProvider struct {
	cfg DeepgramConfig
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	return &DeepgramProvider{cfg: cfg.withDefaults()}
}

func (p *DeepgramProvider) StartSession(ctx context.Context, callID string, opts SessionOptions) (Session, <-chan Event, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 8000
	}
	if opts.UtteranceEndMS <= 0 {
		opts.UtteranceEndMS = 2000
	}
	if opts.EndpointSilenceMS <= 0 {
		opts.EndpointSilenceMS = 2500
	}

	events := make(chan Event, 256)
	s := &deepgramSession{
		cfg:      p.cfg,
		opts:     opts,
		callID:   callID,
		events:   events,
		dialCtx:  ctx,
		reconnCh: make(chan struct{}, 1),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.setConn(conn)
	go s.readLoop()
	return s, events, nil
}

type deepgramSession struct {
	cfg     DeepgramConfig
	opts    SessionOptions
	callID  string
	dialCtx context.Context

	mu            sync.Mutex
	conn          *websocket.Conn
	closed        bool
	buffered      []string
	droppedFrames int
	reconnects    int
	reconnCh      chan struct{}

	events chan Event
}

func (s *deepgramSession) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/listen")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", s.opts.Model)
	q.Set("language", s.opts.Language)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", strconv.Itoa(s.opts.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", strconv.Itoa(s.opts.UtteranceEndMS))
	q.Set("vad_events", "true")
	q.Set("endpointing", strconv.Itoa(s.opts.EndpointSilenceMS))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial stt websocket: %w", err)
	}
	return conn, nil
}

func (s *deepgramSession) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *deepgramSession) SendAudioChunk(ctx context.Context, muLawPayload string) error {
	raw, err := base64.StdEncoding.DecodeString(muLawPayload)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		if len(s.buffered) >= s.cfg.BufferedFrameLimit {
			s.droppedFrames++
			s.mu.Unlock()
			return nil
		}
		s.buffered = append(s.buffered, muLawPayload)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		s.onDisconnect()
		return nil
	}
	return nil
}

func (s *deepgramSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *deepgramSession) readLoop() {
	for {
		s.mu.Lock()
		closed := s.closed
		conn := s.conn
		s.mu.Unlock()
		if closed {
			close(s.events)
			return
		}
		if conn == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.onDisconnect() {
				close(s.events)
				return
			}
			continue
		}
		s.dispatch(data)
	}
}

// onDisconnect attempts reconnection with exponential backoff. It returns
// false once the session is closed or reconnect attempts are exhausted.
func (s *deepgramSession) onDisconnect() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.conn = nil
	s.mu.Unlock()

	for attempt := 0; attempt < s.cfg.MaxReconnects; attempt++ {
		backoff := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 10*time.Second)
		select {
		case <-s.dialCtx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := s.dial(s.dialCtx)
		if err != nil {
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return false
		}
		s.conn = conn
		s.reconnects++
		buffered := s.buffered
		s.buffered = nil
		s.mu.Unlock()

		for _, payload := range buffered {
			_ = s.SendAudioChunk(s.dialCtx, payload)
		}

		s.emit(Event{Type: EventError, Code: "reconnected", Detail: "stt session reconnected"})
		return true
	}

	s.emit(Event{Type: EventError, Code: "provider_unavailable", Retryable: false, Detail: "stt reconnect attempts exhausted"})
	return false
}

func (s *deepgramSession) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *deepgramSession) DroppedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedFrames
}

type deepgramWireMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) dispatch(data []byte) {
	var msg deepgramWireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			return
		}
		evType := EventPartial
		if msg.IsFinal {
			evType = EventFinal
		}
		s.emit(Event{Type: evType, Text: alt.Transcript, Confidence: alt.Confidence})
	case "UtteranceEnd":
		s.emit(Event{Type: EventUtteranceEnd})
	default:
		if reliability.IsRetryableRealtimeMessageType(msg.Type) {
			s.emit(Event{Type: EventError, Code: msg.Type, Retryable: true})
		}
	}
}

func (s *deepgramSession) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}
