package call

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frontdesk-ai/callcore/internal/engine"
	"github.com/frontdesk-ai/callcore/internal/llm"
	"github.com/frontdesk-ai/callcore/internal/observability"
	"github.com/frontdesk-ai/callcore/internal/stt"
	"github.com/frontdesk-ai/callcore/internal/telephony"
	"github.com/frontdesk-ai/callcore/internal/tenant"
	"github.com/frontdesk-ai/callcore/internal/tools"
	"github.com/frontdesk-ai/callcore/internal/tts"
)

type fixture struct {
	session *Session
	channel *telephony.FakeChannel
	sttProv *stt.MockProvider
	ttsProv *tts.MockProvider
	runErr  chan error
}

// metricsNamespaceSeq keeps each test's Prometheus registration distinct;
// promauto panics on duplicate metric names within one process.
var metricsNamespaceSeq int64

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	channel := telephony.NewFakeChannel()
	sttProv := stt.NewMockProvider()
	ttsProv := tts.NewMockProvider()

	cfg.Channel = channel
	cfg.STT = sttProv
	cfg.TTS = ttsProv
	if cfg.Metrics == nil {
		ns := fmt.Sprintf("call_test_%d", atomic.AddInt64(&metricsNamespaceSeq, 1))
		cfg.Metrics = observability.NewMetrics(ns)
	}
	if cfg.Engine == nil {
		adapter := llm.NewMockAdapter()
		router := tools.NewRouter(tools.NewMockStore())
		cfg.Engine = engine.New(adapter, router)
	}
	if cfg.Snapshot.TenantID == "" {
		cfg.Snapshot = tenant.Snapshot{
			TenantID:     "acme",
			GreetingText: "Thanks for calling Acme, how can I help?",
			Voice:        tenant.VoiceConfig{Provider: "mock", VoiceID: "default", SampleRate: 8000},
			ToolLimits: tenant.ToolLimits{
				MaxToolCallsPerTurn: 2,
				PerToolTimeout:      400 * time.Millisecond,
				TotalToolTimeout:    time.Second,
			},
		}
	}
	if cfg.CallID == "" {
		cfg.CallID = "call-1"
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 20 * time.Millisecond
	}
	if cfg.EndFailsafeTimeout == 0 {
		cfg.EndFailsafeTimeout = 150 * time.Millisecond
	}

	s := NewSession(cfg)
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	channel.Push(telephony.Start{
		Event:     telephony.EventStart,
		StreamSID: "stream-1",
		CustomParameters: telephony.StartParameters{
			TenantID:    cfg.Snapshot.TenantID,
			CallerPhone: "+15005550006",
			CallID:      cfg.CallID,
		},
	})

	return &fixture{session: s, channel: channel, sttProv: sttProv, ttsProv: ttsProv, runErr: runErr}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSessionSpeaksGreetingOnStart(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool {
		return f.ttsProv.LastStream() != nil && len(f.ttsProv.LastStream().Spoken) > 0
	})
	if f.session.State() != StateAISpeaking {
		t.Fatalf("state = %v, want AISpeaking right after greeting", f.session.State())
	}
	_ = f.channel.Close()
}

func TestSessionRunsTurnAfterDebouncedUtteranceEnd(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })
	sttSession := f.sttProv.LastSession()

	sttSession.PushEvent(stt.Event{Type: stt.EventFinal, Text: "what are your hours"})
	sttSession.PushEvent(stt.Event{Type: stt.EventUtteranceEnd})

	waitFor(t, time.Second, func() bool {
		stream := f.ttsProv.LastStream()
		if stream == nil {
			return false
		}
		for _, s := range stream.Spoken {
			if s != "" && s != f.session.cfg.Snapshot.GreetingText {
				return true
			}
		}
		return false
	})

	history := f.session.History()
	sawUser := false
	for _, turn := range history {
		if turn.Role == engine.RoleUser && turn.Content == "what are your hours" {
			sawUser = true
		}
	}
	if !sawUser {
		t.Fatalf("history missing the user turn: %+v", history)
	}
	_ = f.channel.Close()
}

func TestSessionBargeInDuringAISpeakingSendsClear(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool { return f.session.State() == StateAISpeaking })

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })
	sttSession := f.sttProv.LastSession()
	sttSession.PushEvent(stt.Event{Type: stt.EventPartial, Text: "wait actually hold on"})

	waitFor(t, time.Second, func() bool { return f.session.State() == StateUserSpeaking })
	if f.channel.ClearCount() == 0 {
		t.Fatal("expected a clear control frame on barge-in")
	}
	_ = f.channel.Close()
}

func TestSessionShortPartialDoesNotBargeIn(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool { return f.session.State() == StateAISpeaking })
	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })
	sttSession := f.sttProv.LastSession()
	sttSession.PushEvent(stt.Event{Type: stt.EventPartial, Text: "um"})

	time.Sleep(50 * time.Millisecond)
	if f.channel.ClearCount() != 0 {
		t.Fatal("a short partial must not trigger barge-in")
	}
	if f.session.State() != StateAISpeaking {
		t.Fatalf("state = %v, want AISpeaking unchanged", f.session.State())
	}
	_ = f.channel.Close()
}

func TestSessionFarewellEndsCallAfterFlush(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })
	sttSession := f.sttProv.LastSession()
	sttSession.PushEvent(stt.Event{Type: stt.EventFinal, Text: "that's all, bye"})
	sttSession.PushEvent(stt.Event{Type: stt.EventUtteranceEnd})

	select {
	case <-f.runErr:
	case <-time.After(time.Second):
		t.Fatal("session did not end after a farewell and flush")
	}
}

func TestSessionThreadsSTTWireParameters(t *testing.T) {
	f := newFixture(t, Config{
		STTUtteranceEndMS:  750 * time.Millisecond,
		STTEndpointSilence: 1250 * time.Millisecond,
	})

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })

	opts := f.sttProv.LastOptions()
	if opts.UtteranceEndMS != 750 {
		t.Fatalf("UtteranceEndMS = %d, want 750", opts.UtteranceEndMS)
	}
	if opts.EndpointSilenceMS != 1250 {
		t.Fatalf("EndpointSilenceMS = %d, want 1250", opts.EndpointSilenceMS)
	}
	_ = f.channel.Close()
}

func TestSessionSTTWireParametersDefault(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })

	opts := f.sttProv.LastOptions()
	if opts.UtteranceEndMS != 2000 {
		t.Fatalf("UtteranceEndMS = %d, want default 2000", opts.UtteranceEndMS)
	}
	if opts.EndpointSilenceMS != 2500 {
		t.Fatalf("EndpointSilenceMS = %d, want default 2500", opts.EndpointSilenceMS)
	}
	_ = f.channel.Close()
}

func TestSessionLLMFailureSpeaksFallbackAndEnds(t *testing.T) {
	adapter := &llm.MockAdapter{Err: fmt.Errorf("upstream exhausted")}
	engineCfg := engine.New(adapter, tools.NewRouter(tools.NewMockStore()))
	f := newFixture(t, Config{Engine: engineCfg})

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })
	sttSession := f.sttProv.LastSession()
	sttSession.PushEvent(stt.Event{Type: stt.EventFinal, Text: "can I book a haircut"})
	sttSession.PushEvent(stt.Event{Type: stt.EventUtteranceEnd})

	select {
	case <-f.runErr:
	case <-time.After(time.Second):
		t.Fatal("session did not end after the LLM adapter failed")
	}

	stream := f.ttsProv.LastStream()
	if stream == nil {
		t.Fatal("expected a tts stream to have spoken the fallback message")
	}
	sawFallback := false
	for _, s := range stream.Spoken {
		if s == providerUnavailableMessage {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Fatalf("spoken fragments = %v, want the provider-unavailable fallback message", stream.Spoken)
	}
}

func TestSessionSTTProviderUnavailableSpeaksFallbackAndEnds(t *testing.T) {
	f := newFixture(t, Config{})

	waitFor(t, time.Second, func() bool { return f.sttProv.LastSession() != nil })
	sttSession := f.sttProv.LastSession()
	sttSession.PushEvent(stt.Event{Type: stt.EventError, Code: "provider_unavailable"})

	select {
	case <-f.runErr:
	case <-time.After(time.Second):
		t.Fatal("session did not end after stt reported provider_unavailable")
	}

	stream := f.ttsProv.LastStream()
	if stream == nil {
		t.Fatal("expected a tts stream to have spoken the fallback message")
	}
	sawFallback := false
	for _, s := range stream.Spoken {
		if s == providerUnavailableMessage {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Fatalf("spoken fragments = %v, want the provider-unavailable fallback message", stream.Spoken)
	}
}
