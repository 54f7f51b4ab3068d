package registry

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

var metricsNamespaceSeq int64

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	if cfg.Tenants == nil {
		store := tenant.NewInMemoryStore()
		store.Put(tenant.Snapshot{
			TenantID:     "acme",
			GreetingText: "Thanks for calling Acme.",
			Voice:        tenant.VoiceConfig{Provider: "mock", VoiceID: "default", SampleRate: 8000},
			ToolLimits:   tenant.ToolLimits{MaxToolCallsPerTurn: 2, PerToolTimeout: 400 * time.Millisecond, TotalToolTimeout: time.Second},
		})
		cfg.Tenants = tenant.NewCache(store, time.Minute)
	}
	if cfg.STT == nil {
		cfg.STT = stt.NewMockProvider()
	}
	if cfg.TTS == nil {
		cfg.TTS = tts.NewMockProvider()
	}
	if cfg.Engine == nil {
		cfg.Engine = engine.New(llm.NewMockAdapter(), tools.NewRouter(tools.NewMockStore()))
	}
	if cfg.Metrics == nil {
		ns := fmt.Sprintf("registry_test_%d", atomic.AddInt64(&metricsNamespaceSeq, 1))
		cfg.Metrics = observability.NewMetrics(ns)
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 20 * time.Millisecond
	}
	if cfg.EndFailsafeTimeout == 0 {
		cfg.EndFailsafeTimeout = 150 * time.Millisecond
	}
	return New(cfg)
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

func startCall(r *Registry, callID string) *telephony.FakeChannel {
	ch := telephony.NewFakeChannel()
	r.Accept("acme", callID, ch)
	ch.Push(telephony.Start{
		Event:     telephony.EventStart,
		StreamSID: "stream-1",
		CustomParameters: telephony.StartParameters{
			TenantID:    "acme",
			CallerPhone: "+15005550006",
			CallID:      callID,
		},
	})
	return ch
}

func TestRegistryAcceptTracksActiveCall(t *testing.T) {
	r := newTestRegistry(t, Config{})
	ch := startCall(r, "call-1")

	waitFor(t, time.Second, func() bool { return r.ActiveCount() == 1 })
	_ = ch.Close()
	waitFor(t, time.Second, func() bool { return r.ActiveCount() == 0 })
}

func TestRegistryShutdownDrainsSessions(t *testing.T) {
	r := newTestRegistry(t, Config{})
	startCall(r, "call-1")
	startCall(r, "call-2")

	waitFor(t, time.Second, func() bool { return r.ActiveCount() == 2 })

	if err := r.Shutdown(context.Background(), time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0 after shutdown", r.ActiveCount())
	}
}

func TestRegistryIdleGuardEndsStaleCall(t *testing.T) {
	r := newTestRegistry(t, Config{IdleGuard: 30 * time.Millisecond})
	startCall(r, "call-1")

	waitFor(t, time.Second, func() bool { return r.ActiveCount() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartJanitor(ctx, 10*time.Millisecond)

	waitFor(t, time.Second, func() bool { return r.ActiveCount() == 0 })
}
