package orchestrator

import (
	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/internal/windowing"
	"github.com/petasbytes/buildfile-agent/memory"
)

// loadHistory returns the stored history. A corrupt history is dropped rather
// than failing the step.
func (o *Orchestrator) loadHistory(s session.State) []memory.Message {
	msgs, err := s.History()
	if err != nil {
		o.log.Warn("dropping unreadable history")
		return nil
	}
	return msgs
}

// appendHistory stores m after the existing history, keeping at most
// HistoryTurns turns without splitting tool exchanges.
func (o *Orchestrator) appendHistory(s session.State, m memory.Message) (session.State, int) {
	if !o.historyEnabled() {
		return s, 0
	}
	msgs := append(o.loadHistory(s), memory.Clip(m, maxHistoryEntryChars))
	kept, _ := windowing.PrepareHistory(msgs, o.opts.HistoryTurns, 0, windowing.HeuristicCounter{})
	out, err := s.WithHistory(kept)
	if err != nil {
		o.log.Warn("history not stored")
		return s, 0
	}
	return out, len(kept)
}

func toMessages(history []memory.Message) []Message {
	out := make([]Message, 0, len(history))
	for _, h := range history {
		out = append(out, Message{Role: h.Role, Content: h.Text})
	}
	return out
}
