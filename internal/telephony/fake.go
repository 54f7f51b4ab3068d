package telephony

import (
	"context"
	"sync"
)

// FakeChannel is an in-process Channel used by call-session tests to drive
// inbound carrier events and assert on outbound audio/control frames without
// a real socket.
type FakeChannel struct {
	mu      sync.Mutex
	inbound chan any
	closed  bool

	SentAudio   []string
	SentControl []Control
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{inbound: make(chan any, 256)}
}

// Push enqueues an inbound carrier event as if received from the wire.
func (f *FakeChannel) Push(event any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.inbound <- event
}

func (f *FakeChannel) SendAudio(_ context.Context, _ string, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentAudio = append(f.SentAudio, payload)
	return nil
}

func (f *FakeChannel) SendControl(_ context.Context, _ string, ctrl Control) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentControl = append(f.SentControl, ctrl)
	return nil
}

func (f *FakeChannel) Recv(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event, ok := <-f.inbound:
		if !ok {
			return nil, ErrConnectionLost
		}
		return event, nil
	}
}

func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbound)
	return nil
}

func (f *FakeChannel) ClearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.SentControl {
		if c.Kind == "clear" {
			n++
		}
	}
	return n
}
