// Package call implements the call session (C7): the per-call turn-state
// machine that wires the carrier transport, the speech-to-text and
// text-to-speech streams, and the conversation engine together, including
// debounced turn-taking, barge-in, greeting playback, and call-end
// detection.
package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk-ai/callcore/internal/engine"
	"github.com/frontdesk-ai/callcore/internal/observability"
	"github.com/frontdesk-ai/callcore/internal/sinks"
	"github.com/frontdesk-ai/callcore/internal/stt"
	"github.com/frontdesk-ai/callcore/internal/telephony"
	"github.com/frontdesk-ai/callcore/internal/tenant"
	"github.com/frontdesk-ai/callcore/internal/tools"
	"github.com/frontdesk-ai/callcore/internal/tts"
)

// State is one turn-taking state in the session's state machine.
type State string

const (
	StateIdle         State = "idle"
	StateUserSpeaking State = "user_speaking"
	StateThinking     State = "thinking"
	StateAISpeaking   State = "ai_speaking"
	StateEnding       State = "ending"
)

// Config wires one call session to its collaborators.
type Config struct {
	CallID   string
	TenantID string
	Snapshot tenant.Snapshot

	Channel telephony.Channel
	STT     stt.Provider
	TTS     tts.Provider
	Engine  *engine.Engine

	Metrics     *observability.Metrics
	BookingSink sinks.BookingSink
	SMSSink     sinks.SMSSink

	SystemPrompt string

	DebounceWindow     time.Duration
	BargeInMinChars    int
	EndFailsafeTimeout time.Duration
	STTUtteranceEndMS  time.Duration
	STTEndpointSilence time.Duration
}

func (c Config) debounceWindow() time.Duration {
	if c.DebounceWindow <= 0 {
		return 500 * time.Millisecond
	}
	return c.DebounceWindow
}

func (c Config) bargeInMinChars() int {
	if c.BargeInMinChars <= 0 {
		return 5
	}
	return c.BargeInMinChars
}

func (c Config) endFailsafeTimeout() time.Duration {
	if c.EndFailsafeTimeout <= 0 {
		return 8 * time.Second
	}
	return c.EndFailsafeTimeout
}

func (c Config) sttUtteranceEndMS() int {
	if c.STTUtteranceEndMS <= 0 {
		return 2000
	}
	return int(c.STTUtteranceEndMS / time.Millisecond)
}

func (c Config) sttEndpointSilenceMS() int {
	if c.STTEndpointSilence <= 0 {
		return 2500
	}
	return int(c.STTEndpointSilence / time.Millisecond)
}

type carrierMsg struct {
	event any
	err   error
}

// Session drives one call end to end. All mutable fields are guarded by mu;
// the carrier recv pump, STT/TTS event delivery, and debounce timers all run
// on their own goroutines and must go through it.
type Session struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	sttSession stt.Session
	sttEvents  <-chan stt.Event
	ttsStream  tts.Stream
	ttsEvents  <-chan tts.Event
	carrierCh  chan carrierMsg

	mu               sync.Mutex
	state            State
	history          History
	pendingUtterance strings.Builder
	debounceTimer    *time.Timer
	debounceGen      int
	engineCancel     context.CancelFunc
	turnStartedAt    time.Time
	pendingEnd       bool
	endFailsafeTimer *time.Timer
	bookingSent      bool
	callerPhone      string
	streamSID        string
	lastActivity     time.Time
	turnSpoken       bool
	unavailableSent  bool

	// llmMu is the single-flight lock a debounced turn must hold for the
	// duration of one engine run. Only one turn runs at a time per call.
	llmMu sync.Mutex
}

func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg, state: StateIdle}
}

// Run drives the session until the carrier disconnects, the call is ended
// by heuristic or failsafe, or ctx is cancelled. It returns once all
// provider connections have been torn down.
func (s *Session) Run(parentCtx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	defer s.cancel()

	sttOpts := stt.SessionOptions{
		Language:          orDefault(s.cfg.Snapshot.Language, "en"),
		SampleRate:        orDefaultInt(s.cfg.Snapshot.Voice.SampleRate, 8000),
		UtteranceEndMS:    s.cfg.sttUtteranceEndMS(),
		EndpointSilenceMS: s.cfg.sttEndpointSilenceMS(),
	}
	sttSession, sttEvents, err := s.cfg.STT.StartSession(s.ctx, s.cfg.CallID, sttOpts)
	if err != nil {
		return fmt.Errorf("call: start stt session: %w", err)
	}
	s.sttSession = sttSession
	s.sttEvents = sttEvents
	defer sttSession.Close()

	ttsStream, err := s.cfg.TTS.StartStream(s.ctx, s.cfg.CallID, tts.StreamOptions{
		Voice:      s.cfg.Snapshot.Voice.VoiceID,
		SampleRate: orDefaultInt(s.cfg.Snapshot.Voice.SampleRate, 8000),
	})
	if err != nil {
		return fmt.Errorf("call: start tts stream: %w", err)
	}
	s.ttsStream = ttsStream
	s.ttsEvents = ttsStream.Events()
	defer ttsStream.Close()

	s.carrierCh = make(chan carrierMsg, 64)
	go s.recvLoop()

	if err := s.awaitStart(); err != nil {
		return err
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionEvents.WithLabelValues("started").Inc()
		s.cfg.Metrics.ActiveSessions.Inc()
		defer s.cfg.Metrics.ActiveSessions.Dec()
	}

	s.sendGreeting()
	s.mainLoop()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionEvents.WithLabelValues("ended").Inc()
	}
	return nil
}

func (s *Session) recvLoop() {
	for {
		ev, err := s.cfg.Channel.Recv(s.ctx)
		msg := carrierMsg{event: ev, err: err}
		select {
		case s.carrierCh <- msg:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) awaitStart() error {
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case msg := <-s.carrierCh:
			if msg.err != nil {
				return msg.err
			}
			if start, ok := msg.event.(telephony.Start); ok {
				s.streamSID = start.StreamSID
				s.callerPhone = start.CustomParameters.CallerPhone
				s.touchActivity()
				return nil
			}
		}
	}
}

func (s *Session) sendGreeting() {
	s.mu.Lock()
	s.turnStartedAt = time.Now()
	s.state = StateAISpeaking
	s.mu.Unlock()

	greeting := s.cfg.Snapshot.GreetingText
	if ref := strings.TrimSpace(s.cfg.Snapshot.GreetingAudioRef); ref != "" {
		_ = s.cfg.Channel.SendAudio(s.ctx, s.streamSID, ref)
	} else if greeting != "" {
		_ = s.ttsStream.SpeakFragment(s.ctx, greeting)
		_ = s.ttsStream.Flush(s.ctx)
	}

	s.mu.Lock()
	s.history.AppendGreeting(greeting)
	s.mu.Unlock()
}

func (s *Session) mainLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.carrierCh:
			if msg.err != nil {
				return
			}
			if s.handleCarrierEvent(msg.event) {
				return
			}
		case ev, ok := <-s.sttEvents:
			if !ok {
				return
			}
			s.handleSTTEvent(ev)
		case ev, ok := <-s.ttsEvents:
			if !ok {
				return
			}
			s.handleTTSEvent(ev)
		}
	}
}

func (s *Session) handleCarrierEvent(event any) (done bool) {
	switch ev := event.(type) {
	case telephony.Media:
		s.touchActivity()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveAudioBytes("in", len(ev.Payload))
		}
		_ = s.sttSession.SendAudioChunk(s.ctx, ev.Payload)
		return false
	case telephony.Stop:
		return true
	default:
		return false
	}
}

func (s *Session) handleSTTEvent(ev stt.Event) {
	switch ev.Type {
	case stt.EventPartial:
		s.handlePartial(ev.Text)
	case stt.EventFinal:
		s.handleFinal(ev.Text)
	case stt.EventUtteranceEnd:
		s.handleUtteranceEnd()
	case stt.EventError:
		if s.cfg.Metrics != nil {
			if ev.Code == "reconnected" {
				s.cfg.Metrics.ObserveProviderReconnect("stt")
			} else {
				s.cfg.Metrics.ObserveProviderError("stt", ev.Code)
			}
		}
		if ev.Code == "provider_unavailable" {
			s.providerUnavailable(s.ctx, "stt")
		}
	}
}

func (s *Session) handlePartial(text string) {
	cleaned := strings.TrimSpace(text)

	s.mu.Lock()
	shouldBargeIn := s.state == StateAISpeaking && len(cleaned) > s.cfg.bargeInMinChars()
	if shouldBargeIn || s.state == StateIdle {
		s.state = StateUserSpeaking
	}
	s.cancelPendingEndLocked()
	s.mu.Unlock()

	if shouldBargeIn {
		s.handleBargeIn()
	}
}

// handleBargeIn interrupts an in-progress assistant turn: it tells the
// carrier to drop queued audio and cancels the engine run, if one is
// active, outside the lock so the cancellation can't deadlock against a
// goroutine trying to acquire mu.
func (s *Session) handleBargeIn() {
	s.mu.Lock()
	cancel := s.engineCancel
	s.engineCancel = nil
	s.mu.Unlock()

	_ = s.cfg.Channel.SendControl(s.ctx, s.streamSID, telephony.Control{Kind: "clear"})
	if cancel != nil {
		cancel()
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveBargeIn()
	}
}

func (s *Session) handleFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	s.state = StateUserSpeaking
	if s.pendingUtterance.Len() > 0 {
		s.pendingUtterance.WriteByte(' ')
	}
	s.pendingUtterance.WriteString(text)
	s.mu.Unlock()
}

func (s *Session) handleUtteranceEnd() {
	s.mu.Lock()
	s.state = StateUserSpeaking
	s.cancelPendingEndLocked()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceGen++
	gen := s.debounceGen
	s.debounceTimer = time.AfterFunc(s.cfg.debounceWindow(), func() { s.onDebounceFire(gen) })
	s.mu.Unlock()
}

// cancelPendingEndLocked clears a scheduled call-end; callers must hold mu.
func (s *Session) cancelPendingEndLocked() {
	s.pendingEnd = false
	if s.endFailsafeTimer != nil {
		s.endFailsafeTimer.Stop()
		s.endFailsafeTimer = nil
	}
}

// onDebounceFire attempts to run one turn once the debounce window has
// elapsed without a further UtteranceEnd. It queues on the session's
// single-flight lock rather than dropping work, but bails without running
// if superseded by a newer debounce generation while it waited.
func (s *Session) onDebounceFire(gen int) {
	s.mu.Lock()
	if gen != s.debounceGen {
		s.mu.Unlock()
		return
	}
	utterance := strings.TrimSpace(s.pendingUtterance.String())
	s.pendingUtterance.Reset()
	s.mu.Unlock()

	if utterance == "" {
		return
	}

	s.llmMu.Lock()
	defer s.llmMu.Unlock()

	s.mu.Lock()
	if gen != s.debounceGen {
		s.mu.Unlock()
		return
	}
	s.state = StateThinking
	turnCtx, cancel := context.WithCancel(s.ctx)
	s.engineCancel = cancel
	s.turnStartedAt = time.Now()
	s.turnSpoken = false
	s.mu.Unlock()

	s.runTurn(turnCtx, utterance)

	s.mu.Lock()
	s.engineCancel = nil
	s.mu.Unlock()
}

func (s *Session) runTurn(ctx context.Context, utterance string) {
	turnID := uuid.NewString()

	s.mu.Lock()
	history := s.history.Snapshot()
	limits := s.cfg.Snapshot.ToolLimits
	s.mu.Unlock()

	req := engine.Request{
		TenantID:      s.cfg.Snapshot.TenantID,
		CallID:        s.cfg.CallID,
		TurnID:        turnID,
		SystemPrompt:  s.cfg.SystemPrompt,
		History:       history,
		UserUtterance: utterance,
		ToolBudget:    limits.MaxToolCallsPerTurn,
		ToolLimits: tools.Limits{
			PerCallTimeout: limits.PerToolTimeout,
			TotalTimeout:   limits.TotalToolTimeout,
			MaxCalls:       limits.MaxToolCallsPerTurn,
		},
		Speak: s.speak,
		Flush: s.flush,
	}

	result, err := s.cfg.Engine.RunTurn(ctx, req)
	if err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveProviderError("llm", "run_turn_failed")
		}
		if ctx.Err() == nil {
			s.providerUnavailable(s.ctx, "llm")
		}
		return
	}
	if result.Interrupted {
		return
	}

	s.mu.Lock()
	s.history.Append(utterance, result.NewTurns)
	s.mu.Unlock()

	s.maybeInvokeSinks(ctx)
	s.maybeScheduleEnd(utterance)
}

// speak is the engine's Speak callback: it hands one synthesizable
// fragment of the assistant's reply to the TTS stream. The first call per
// turn marks the LLM's first-token latency.
func (s *Session) speak(ctx context.Context, fragment string) error {
	s.mu.Lock()
	first := !s.turnSpoken
	s.turnSpoken = true
	turnStart := s.turnStartedAt
	s.mu.Unlock()
	if first && !turnStart.IsZero() && s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveTurnStage("llm_first_token", time.Since(turnStart))
	}
	return s.ttsStream.SpeakFragment(ctx, fragment)
}

func (s *Session) flush(ctx context.Context) error {
	return s.ttsStream.Flush(ctx)
}

// maybeInvokeSinks examines the most recently sealed assistant turn for a
// completed booking confirmation and, the first time one is seen this
// call, invokes the booking sink followed by the SMS sink. Either failing
// is recorded in metrics, never fails the call.
func (s *Session) maybeInvokeSinks(ctx context.Context) {
	s.mu.Lock()
	if s.bookingSent {
		s.mu.Unlock()
		return
	}
	last, ok := s.history.Last()
	phone := s.callerPhone
	s.mu.Unlock()

	if !ok {
		return
	}

	if last.Role != engine.RoleAgent || last.ToolName != "" {
		return
	}
	if !looksLikeBookingConfirmation(last.Content) {
		return
	}

	s.mu.Lock()
	s.bookingSent = true
	s.mu.Unlock()

	booking := sinks.Booking{
		TenantID:      s.cfg.Snapshot.TenantID,
		CallID:        s.cfg.CallID,
		CustomerPhone: phone,
	}
	if s.cfg.BookingSink != nil {
		if err := s.cfg.BookingSink.CreateBooking(ctx, booking); err != nil && s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveSinkFailure("booking")
		}
	}
	if s.cfg.SMSSink != nil && phone != "" {
		msg := sinks.SMSMessage{ToPhone: phone, Body: "You're all set, we'll see you soon."}
		if err := s.cfg.SMSSink.SendSMS(ctx, msg); err != nil && s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveSinkFailure("sms")
		}
	}
}

// maybeScheduleEnd arms the call-end heuristic once the latest user turn
// reads as an explicit farewell: the call ends once the assistant's reply
// finishes flushing, with a fail-safe absolute timeout as backstop.
func (s *Session) maybeScheduleEnd(utterance string) {
	if !isFarewell(utterance) {
		return
	}
	s.mu.Lock()
	s.pendingEnd = true
	if s.endFailsafeTimer != nil {
		s.endFailsafeTimer.Stop()
	}
	s.endFailsafeTimer = time.AfterFunc(s.cfg.endFailsafeTimeout(), s.forceEnd)
	s.mu.Unlock()
}

func (s *Session) forceEnd() {
	s.mu.Lock()
	if s.state == StateEnding {
		s.mu.Unlock()
		return
	}
	s.state = StateEnding
	s.cancelPendingEndLocked()
	s.mu.Unlock()
	s.cancel()
}

// End forces the call into the Ending state, unblocking Run. The registry
// calls this on the idle-guard timeout (no inbound or outbound audio for
// the configured window); on process shutdown it cancels the context
// passed to Run instead.
func (s *Session) End() {
	s.forceEnd()
}

// providerUnavailableMessage is the canned line spoken when STT or the LLM
// has exhausted its own retry/fallback path and the call cannot continue.
// TTS errors are only counted in metrics; a TTS stream that closes ends
// the session without this message.
const providerUnavailableMessage = "I'm having trouble connecting right now. Let me take a message and have someone call you back."

// providerUnavailable speaks the degraded-path message once per call and
// ends it gracefully. It is the last resort after a provider's own
// reconnect/fallback handling has given up.
func (s *Session) providerUnavailable(ctx context.Context, provider string) {
	s.mu.Lock()
	if s.unavailableSent {
		s.mu.Unlock()
		return
	}
	s.unavailableSent = true
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveProviderError(provider, "provider_unavailable")
	}
	if s.ttsStream != nil {
		_ = s.ttsStream.SpeakFragment(ctx, providerUnavailableMessage)
		_ = s.ttsStream.Flush(ctx)
	}
	s.forceEnd()
}

func (s *Session) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long it has been since the last inbound or outbound
// audio frame, or since the carrier's start event if no frame has passed
// yet. It returns 0 before the start event.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastActivity.IsZero() {
		return 0
	}
	return time.Since(s.lastActivity)
}

func (s *Session) handleTTSEvent(ev tts.Event) {
	switch ev.Type {
	case tts.EventAudio:
		s.mu.Lock()
		turnStart := s.turnStartedAt
		first := s.state != StateAISpeaking
		s.state = StateAISpeaking
		sid := s.streamSID
		s.mu.Unlock()
		if first && !turnStart.IsZero() && s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveFirstAudioLatency(time.Since(turnStart))
		}
		s.touchActivity()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveAudioBytes("out", len(ev.AudioBase64))
		}
		_ = s.cfg.Channel.SendAudio(s.ctx, sid, ev.AudioBase64)
	case tts.EventFlushed:
		s.mu.Lock()
		pendingEnd := s.pendingEnd
		if s.state == StateAISpeaking {
			s.state = StateIdle
		}
		s.mu.Unlock()
		if pendingEnd {
			s.forceEnd()
		}
	case tts.EventError:
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveProviderError("tts", ev.Code)
		}
	}
}

// State returns the session's current turn-taking state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the call's sealed conversation history.
func (s *Session) History() []engine.HistoryTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Snapshot()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
