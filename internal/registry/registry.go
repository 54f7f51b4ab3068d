// Package registry implements the process-wide session supervisor (C8): a
// concurrent map of live call sessions, a janitor that enforces the
// no-activity idle guard, and a graceful drain sequence for process
// shutdown. It implements telephony.Acceptor, turning one accepted carrier
// socket into one running call.Session.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/frontdesk-ai/callcore/internal/call"
	"github.com/frontdesk-ai/callcore/internal/engine"
	"github.com/frontdesk-ai/callcore/internal/observability"
	"github.com/frontdesk-ai/callcore/internal/sinks"
	"github.com/frontdesk-ai/callcore/internal/stt"
	"github.com/frontdesk-ai/callcore/internal/telephony"
	"github.com/frontdesk-ai/callcore/internal/tenant"
	"github.com/frontdesk-ai/callcore/internal/tts"
)

// Config wires the registry's shared, call-independent collaborators.
// Per-call state (the tenant snapshot, the carrier channel) is resolved
// inside Accept.
type Config struct {
	Tenants *tenant.Cache
	STT     stt.Provider
	TTS     tts.Provider
	Engine  *engine.Engine
	Metrics *observability.Metrics

	BookingSink sinks.BookingSink
	SMSSink     sinks.SMSSink

	DebounceWindow     time.Duration
	BargeInMinChars    int
	EndFailsafeTimeout time.Duration
	STTUtteranceEndMS  time.Duration
	STTEndpointSilence time.Duration

	// IdleGuard ends a call after this long with no inbound or outbound
	// audio in either direction. Defaults to 30s.
	IdleGuard time.Duration
}

func (c Config) idleGuard() time.Duration {
	if c.IdleGuard <= 0 {
		return 30 * time.Second
	}
	return c.IdleGuard
}

type entry struct {
	session *call.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Registry owns every in-flight call.Session for this process.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*entry
}

func New(cfg Config) *Registry {
	return &Registry{cfg: cfg, sessions: make(map[string]*entry)}
}

// Accept starts a new call session run-loop over an already-upgraded
// carrier channel. It returns immediately; the session runs on its own
// goroutine until the carrier disconnects, the call ends, or Shutdown
// cancels it.
func (r *Registry) Accept(tenantID, callID string, ch telephony.Channel) {
	ctx, cancel := context.WithCancel(context.Background())

	snapshot := r.cfg.Tenants.Resolve(ctx, tenantID, "")

	session := call.NewSession(call.Config{
		CallID:             callID,
		TenantID:           snapshot.TenantID,
		Snapshot:           snapshot,
		Channel:            ch,
		STT:                r.cfg.STT,
		TTS:                r.cfg.TTS,
		Engine:             r.cfg.Engine,
		Metrics:            r.cfg.Metrics,
		BookingSink:        r.cfg.BookingSink,
		SMSSink:            r.cfg.SMSSink,
		SystemPrompt:       buildSystemPrompt(snapshot),
		DebounceWindow:     r.cfg.DebounceWindow,
		BargeInMinChars:    r.cfg.BargeInMinChars,
		EndFailsafeTimeout: r.cfg.EndFailsafeTimeout,
		STTUtteranceEndMS:  r.cfg.STTUtteranceEndMS,
		STTEndpointSilence: r.cfg.STTEndpointSilence,
	})

	e := &entry{session: session, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if old, ok := r.sessions[callID]; ok {
		// A reused call id pre-empts the stale entry rather than leaking it.
		old.cancel()
	}
	r.sessions[callID] = e
	r.mu.Unlock()

	go r.run(ctx, callID, e)
}

func (r *Registry) run(ctx context.Context, callID string, e *entry) {
	defer close(e.done)
	defer e.cancel()

	_ = e.session.Run(ctx)

	r.mu.Lock()
	if r.sessions[callID] == e {
		delete(r.sessions, callID)
	}
	r.mu.Unlock()
}

// ActiveCount returns the number of sessions currently tracked.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartJanitor starts a goroutine that polls every interval and ends any
// call that has had no inbound or outbound audio for the configured idle
// guard. It returns immediately; the goroutine stops once ctx is
// cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireIdle()
			}
		}
	}()
}

func (r *Registry) expireIdle() {
	guard := r.cfg.idleGuard()

	r.mu.RLock()
	var idle []*call.Session
	for _, e := range r.sessions {
		if e.session.IdleFor() >= guard {
			idle = append(idle, e.session)
		}
	}
	r.mu.RUnlock()

	for _, s := range idle {
		s.End()
	}
}

// Shutdown cancels every in-flight session and waits up to drain for them
// to finish tearing down their provider connections. It returns an error
// naming any sessions still running once the drain window elapses.
func (r *Registry) Shutdown(ctx context.Context, drain time.Duration) error {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.cancel()
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, drain)
	defer drainCancel()

	var stuck []string
	for id, e := range entries {
		select {
		case <-e.done:
		case <-drainCtx.Done():
			stuck = append(stuck, id)
		}
	}

	if len(stuck) > 0 {
		sort.Strings(stuck)
		return fmt.Errorf("registry: %d session(s) did not drain in time: %s", len(stuck), strings.Join(stuck, ", "))
	}
	return nil
}

func buildSystemPrompt(snap tenant.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI receptionist for %s", orDefault(snap.DisplayName, "this business"))
	if snap.Industry != "" {
		fmt.Fprintf(&b, ", a %s business", snap.Industry)
	}
	b.WriteString(". ")
	if snap.Tone != "" {
		fmt.Fprintf(&b, "Keep a %s tone. ", snap.Tone)
	}
	b.WriteString("Use the available tools to answer questions about services, hours, and bookings; never invent information you cannot look up.")
	keys := make([]string, 0, len(snap.SystemPromptVars))
	for k := range snap.SystemPromptVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s: %s.", k, snap.SystemPromptVars[k])
	}
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
