package call

import "github.com/frontdesk-ai/callcore/internal/engine"

// History is the call's append-only sealed conversation log. A turn is
// only appended once the engine signals Done; a cancelled engine run
// never reaches Append, so an interrupted turn leaves no trace rather
// than being recorded with an interrupted flag. Each sealed turn gets a
// monotonically increasing Seq, assigned here rather than by the engine
// since the engine only ever sees one request's worth of turns at a time.
type History struct {
	turns   []engine.HistoryTurn
	nextSeq int
}

func (h *History) seal(t engine.HistoryTurn) {
	t.Seq = h.nextSeq
	h.nextSeq++
	h.turns = append(h.turns, t)
}

// Append seals a completed user turn (plus whatever tool/assistant turns
// the engine produced) onto the log.
func (h *History) Append(userUtterance string, newTurns []engine.HistoryTurn) {
	h.seal(engine.HistoryTurn{Role: engine.RoleUser, Content: userUtterance})
	for _, t := range newTurns {
		h.seal(t)
	}
}

// AppendGreeting seals the call's opening assistant turn.
func (h *History) AppendGreeting(text string) {
	if text == "" {
		return
	}
	h.seal(engine.HistoryTurn{Role: engine.RoleAgent, Content: text})
}

// Snapshot returns a copy of the turns sealed so far, safe to pass to the
// engine as request history.
func (h *History) Snapshot() []engine.HistoryTurn {
	return append([]engine.HistoryTurn(nil), h.turns...)
}

// Last returns the most recently sealed turn and whether one exists.
func (h *History) Last() (engine.HistoryTurn, bool) {
	if len(h.turns) == 0 {
		return engine.HistoryTurn{}, false
	}
	return h.turns[len(h.turns)-1], true
}
