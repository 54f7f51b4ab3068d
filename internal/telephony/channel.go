package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionLost is returned from Recv once the underlying socket closes;
// the session must react by entering cleanup.
var ErrConnectionLost = errors.New("telephony: connection lost")

// Control is the outbound-control vocabulary C7 may send alongside audio.
type Control struct {
	Kind string // "clear" or "mark"
	Name string // mark name, empty for clear
}

// Channel is the bidirectional surface C7 drives: send audio/control frames
// out, and pull framed inbound carrier events one at a time.
type Channel interface {
	SendAudio(ctx context.Context, streamSID string, payload string) error
	SendControl(ctx context.Context, streamSID string, ctrl Control) error
	Recv(ctx context.Context) (any, error)
	Close() error
}

// wsChannel adapts one gorilla/websocket connection to the Channel contract.
type wsChannel struct {
	conn *websocket.Conn
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	conn.SetReadLimit(2 << 20)
	return &wsChannel{conn: conn}
}

func (c *wsChannel) SendAudio(ctx context.Context, streamSID string, payload string) error {
	return c.writeJSON(ctx, OutboundMedia{Event: EventMedia, StreamSID: streamSID, Payload: payload})
}

func (c *wsChannel) SendControl(ctx context.Context, streamSID string, ctrl Control) error {
	switch ctrl.Kind {
	case "clear":
		return c.writeJSON(ctx, OutboundClear{Event: EventClear, StreamSID: streamSID})
	case "mark":
		return c.writeJSON(ctx, OutboundMark{Event: EventMark, StreamSID: streamSID, Name: ctrl.Name})
	default:
		return fmt.Errorf("telephony: unknown control kind %q", ctrl.Kind)
	}
}

func (c *wsChannel) writeJSON(ctx context.Context, v any) error {
	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("telephony: write failed: %w", err)
	}
	return nil
}

func (c *wsChannel) Recv(ctx context.Context) (any, error) {
	type result struct {
		event any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			done <- result{nil, ErrConnectionLost}
			return
		}
		event, perr := ParseCarrierEvent(data)
		done <- result{event, perr}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.event, r.err
	}
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
