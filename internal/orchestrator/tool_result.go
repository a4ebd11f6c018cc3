package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/petasbytes/buildfile-agent/internal/windowing"
	"github.com/petasbytes/buildfile-agent/memory"
)

func (o *Orchestrator) toolResponded(step StepContext) (Result, error) {
	sess := step.Session.Clone()

	content := renderToolOutput(step.Payload)
	content, truncated := truncateRunes(content, o.opts.MaxToolChars)

	var messages []Message
	if o.historyEnabled() {
		window, _ := windowing.PrepareHistory(o.loadHistory(sess), o.opts.HistoryTurns, o.opts.HistoryBudget, windowing.HeuristicCounter{})
		messages = toMessages(window)
	}
	messages = append(messages,
		Message{Role: memory.RoleAssistant, Content: followUpInstruction(o.opts.ToolName)},
		Message{Role: memory.RoleUser, Content: content},
	)

	var turns int
	sess, turns = o.appendHistory(sess, memory.Message{Role: memory.RoleUser, Text: content, Tool: o.opts.ToolName})

	runes := utf8.RuneCountInString(content)
	note := fmt.Sprintf("tool result of %d chars forwarded to model with %d history turn(s)", runes, len(messages)-2)
	if truncated {
		note += fmt.Sprintf("; truncated to %d chars", o.opts.MaxToolChars)
	}
	return Result{
		Action:  InvokeModel{Request: o.newRequest(messages), TraceNote: note},
		Session: sess,
		Stats: Stats{
			ToolOutputRunes:     runes,
			ToolOutputTruncated: truncated,
			HistoryTurns:        turns,
		},
	}, nil
}

// truncateRunes keeps the first n runes of s.
func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}

// renderToolOutput formats file records as one section per path. Payloads
// that are not records are returned unchanged.
func renderToolOutput(payload string) string {
	if !gjson.Valid(payload) {
		return payload
	}
	root := gjson.Parse(payload)
	// API gateway style wrapper: {"statusCode": 200, "body": "<json>"}
	if body := root.Get("body"); body.Type == gjson.String && gjson.Valid(body.String()) {
		root = gjson.Parse(body.String())
	}
	var records []gjson.Result
	switch {
	case root.IsArray():
		records = root.Array()
	case root.Get("results").IsArray():
		records = root.Get("results").Array()
	default:
		return payload
	}
	if len(records) == 0 {
		return payload
	}
	for _, r := range records {
		if r.Get("path").Type != gjson.String {
			return payload
		}
	}

	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n", r.Get("path").String())
		switch {
		case r.Get("error").String() != "":
			fmt.Fprintf(&b, "error: %s\n", r.Get("error").String())
		case r.Get("encoding").String() == "base64":
			fmt.Fprintf(&b, "(binary file, %d bytes base64-encoded, omitted)\n", len(r.Get("content").String()))
		default:
			c := r.Get("content").String()
			b.WriteString("```\n")
			b.WriteString(c)
			if !strings.HasSuffix(c, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n")
		}
	}
	return b.String()
}
