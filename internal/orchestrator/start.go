package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/memory"
)

func (o *Orchestrator) start(step StepContext) (Result, error) {
	ex := session.Extract(step.Payload)
	sess := step.Session.MergeMissing(ex.Fields)

	// The credential stays in the session; the model never sees it.
	desc := session.RedactCredentials(ex.Description)

	keys := make([]string, 0, len(ex.Fields))
	for k := range ex.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var turns int
	if o.historyEnabled() {
		sess = sess.Clone()
		delete(sess, session.KeyHistory)
		sess, turns = o.appendHistory(sess, memory.Message{Role: memory.RoleUser, Text: desc})
	}

	req := o.newRequest([]Message{{Role: memory.RoleUser, Content: desc}})
	note := fmt.Sprintf("start: extracted %d static parameter(s) %v; invoking model %s", len(keys), keys, o.opts.ModelID)
	if missing := sess.Missing(); len(missing) > 0 {
		note += fmt.Sprintf(" (still missing %s)", strings.Join(missing, ", "))
	}
	return Result{
		Action:  InvokeModel{Request: req, TraceNote: note},
		Session: sess,
		Stats:   Stats{ExtractedKeys: keys, HistoryTurns: turns},
	}, nil
}
