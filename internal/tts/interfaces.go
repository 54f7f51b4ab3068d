// Package tts implements the streaming text-to-speech client (C3): a
// per-call connection that accepts text fragments and a flush signal, and
// emits audio frames and a "flushed" confirmation.
package tts

import "context"

type EventType string

const (
	EventAudio   EventType = "audio"
	EventFlushed EventType = "flushed"
	EventError   EventType = "error"
)

// Event is one asynchronous TTS callback.
type Event struct {
	Type        EventType
	AudioBase64 string
	Code        string
	Detail      string
	Retryable   bool
}

// Stream is one open streaming connection for a single call.
type Stream interface {
	SpeakFragment(ctx context.Context, text string) error
	Flush(ctx context.Context) error
	Events() <-chan Event
	Close() error
}

// Provider opens a new streaming stream for a call.
type Provider interface {
	StartStream(ctx context.Context, callID string, opts StreamOptions) (Stream, error)
}

// StreamOptions carries the voice/encoding selection from the tenant
// snapshot's voice configuration.
type StreamOptions struct {
	Voice      string
	SampleRate int
}
