// Package stt implements the streaming speech-to-text client (C2): a
// per-call connection that accepts audio bytes and emits partial
// transcripts, final transcripts, and utterance-end events.
package stt

import "context"

// EventType identifies the kind of event emitted on the STT event channel.
type EventType string

const (
	EventPartial      EventType = "partial"
	EventFinal        EventType = "final"
	EventUtteranceEnd EventType = "utterance_end"
	EventError        EventType = "error"
)

// Event is one asynchronous STT callback: a Transcript(text, isFinal) /
// UtteranceEnd() callback pair plus an error variant for taxonomy-tagged
// provider faults.
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
	Retryable  bool
	Code       string
	Detail     string
}

// Session is one open streaming connection for a single call.
type Session interface {
	// SendAudioChunk forwards one inbound μ-law frame to the provider.
	SendAudioChunk(ctx context.Context, muLawPayload string) error
	Close() error
}

// Provider opens a new streaming session for a call.
type Provider interface {
	StartSession(ctx context.Context, callID string, opts SessionOptions) (Session, <-chan Event, error)
}

// SessionOptions carries the per-call tuning a provider session needs.
type SessionOptions struct {
	Model             string
	Language          string
	SampleRate        int
	UtteranceEndMS    int
	EndpointSilenceMS int
}
