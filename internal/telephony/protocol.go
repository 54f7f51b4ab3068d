// Package telephony implements the carrier-facing WebSocket transport (C1):
// accepting a per-call audio socket, framing inbound carrier events, and
// sending media/mark/clear control frames back.
package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies carrier websocket payload variants.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventMedia     EventType = "media"
	EventMark      EventType = "mark"
	EventStop      EventType = "stop"
	EventClear     EventType = "clear"
)

var ErrUnsupportedEvent = errors.New("unsupported carrier event")

type envelope struct {
	Event EventType `json:"event"`
}

// StartParameters carries the tenant/call identifiers the carrier attaches
// to the "start" event's custom parameters.
type StartParameters struct {
	TenantID    string `json:"tenant_id"`
	CallerPhone string `json:"caller_phone"`
	CallID      string `json:"call_id"`
}

// Start is the carrier's stream-open event.
type Start struct {
	Event            EventType       `json:"event"`
	StreamSID        string          `json:"streamSid"`
	CustomParameters StartParameters `json:"customParameters"`
}

// Media carries one inbound μ-law audio frame.
type Media struct {
	Event   EventType `json:"event"`
	Payload string    `json:"payload"`
}

// Mark carries a client-supplied marker name, used to correlate playback
// completion with a given assistant turn.
type Mark struct {
	Event EventType `json:"event"`
	Name  string    `json:"name"`
}

// Stop signals the carrier is ending the stream.
type Stop struct {
	Event EventType `json:"event"`
}

// OutboundMedia is the outbound audio-frame envelope sent back to the carrier.
type OutboundMedia struct {
	Event     EventType `json:"event"`
	StreamSID string    `json:"streamSid"`
	Payload   string    `json:"payload"`
}

// OutboundMark is the outbound mark envelope, echoed once playback reaches it.
type OutboundMark struct {
	Event     EventType `json:"event"`
	StreamSID string    `json:"streamSid"`
	Name      string    `json:"name"`
}

// OutboundClear tells the carrier to drop any queued outbound audio — the
// wire-level mechanism behind barge-in.
type OutboundClear struct {
	Event     EventType `json:"event"`
	StreamSID string    `json:"streamSid"`
}

type inbound struct {
	Event            EventType       `json:"event"`
	StreamSID        string          `json:"streamSid"`
	CustomParameters StartParameters `json:"customParameters"`
	Payload          string          `json:"payload"`
	Name             string          `json:"name"`
}

// ParseCarrierEvent decodes one JSON-framed inbound carrier event.
func ParseCarrierEvent(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid carrier envelope: %w", err)
	}

	var in inbound
	switch env.Event {
	case EventConnected:
		return struct{ Event EventType }{Event: EventConnected}, nil
	case EventStart:
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid start event: %w", err)
		}
		if in.StreamSID == "" {
			return nil, errors.New("start event missing streamSid")
		}
		return Start{Event: EventStart, StreamSID: in.StreamSID, CustomParameters: in.CustomParameters}, nil
	case EventMedia:
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid media event: %w", err)
		}
		if in.Payload == "" {
			return nil, errors.New("media event missing payload")
		}
		return Media{Event: EventMedia, Payload: in.Payload}, nil
	case EventMark:
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid mark event: %w", err)
		}
		return Mark{Event: EventMark, Name: in.Name}, nil
	case EventStop:
		return Stop{Event: EventStop}, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}
