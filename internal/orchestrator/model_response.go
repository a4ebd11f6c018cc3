package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/memory"
)

// PathFields are the tool-input fields that may carry the requested file paths.
var PathFields = []string{"filePath", "filePaths", "paths", "path"}

// toolUseNamespace seeds deterministic tool-use ids.
var toolUseNamespace = uuid.MustParse("8f7c2a52-3d0e-4b7a-9c51-2e6f4d1b9a30")

func (o *Orchestrator) modelResponded(step StepContext) (Result, error) {
	sess := step.Session.Clone()

	if !gjson.Valid(step.Payload) {
		return o.finish(sess, step.Payload, ReasonMalformed, "model response is not structured; returning raw text"), nil
	}
	r, shape, ok := matchReply(step.Payload)
	if !ok {
		return o.finish(sess, step.Payload, ReasonMalformed, "model response matched no known shape; returning raw text"), nil
	}
	if r.Tool == nil {
		sess, _ = o.appendHistory(sess, memory.Message{Role: memory.RoleAssistant, Text: r.Text})
		return o.finish(sess, r.Text, ReasonCompleted, fmt.Sprintf("model returned final text (%s)", shape)), nil
	}

	call := r.Tool
	if call.Name != o.opts.ToolName {
		msg := fmt.Sprintf("The model requested an unknown tool %q; only %q is available. Start a new conversation to retry.", call.Name, o.opts.ToolName)
		return o.finish(sess, msg, ReasonUnknownTool, fmt.Sprintf("rejected tool %q", call.Name)), nil
	}

	requested, err := stripCoordinates(normalizeToolInput(call.Input))
	if err != nil {
		return o.finish(sess, step.Payload, ReasonMalformed, "tool input could not be processed: "+err.Error()), nil
	}
	if missing := sess.Missing(); len(missing) > 0 {
		msg := "missing required parameters: " + strings.Join(missing, ", ")
		return o.finish(sess, msg, ReasonMissingParams, msg), nil
	}
	if !hasPathField(requested) {
		msg := "missing required parameters: filePaths"
		return o.finish(sess, msg, ReasonMissingParams, msg), nil
	}
	input, err := withCoordinates(requested, sess)
	if err != nil {
		return o.finish(sess, step.Payload, ReasonMalformed, "tool input could not be processed: "+err.Error()), nil
	}

	id := call.ID
	if id == "" {
		id = uuid.NewSHA1(toolUseNamespace, []byte(step.Payload)).String()
	}
	var turns int
	sess, turns = o.appendHistory(sess, memory.Message{
		Role: memory.RoleAssistant,
		Text: call.Name + " " + requested,
		Tool: call.Name,
	})

	return Result{
		Action: InvokeTool{
			ToolName:  call.Name,
			ToolUseID: id,
			Input:     []byte(input),
			TraceNote: fmt.Sprintf("model requested %s (%s); invoking tool with session coordinates", call.Name, shape),
		},
		Session: sess,
		Stats:   Stats{HistoryTurns: turns},
	}, nil
}

func (o *Orchestrator) finish(sess session.State, text string, reason FinishReason, note string) Result {
	return Result{
		Action:  Finish{FinalText: text, Reason: reason, TraceNote: "finish: " + note},
		Session: sess,
	}
}

// normalizeToolInput returns the model's tool input as a JSON object.
// A JSON-encoded object string is decoded, a list is taken as file paths and
// a bare string as a single path.
func normalizeToolInput(in gjson.Result) string {
	switch {
	case in.IsObject():
		return in.Raw
	case in.IsArray():
		out, _ := sjson.SetRaw(`{}`, "filePaths", in.Raw)
		return out
	case in.Type == gjson.String:
		s := strings.TrimSpace(in.String())
		if inner := gjson.Parse(s); gjson.Valid(s) && (inner.IsObject() || inner.IsArray()) {
			return normalizeToolInput(inner)
		}
		if s == "" {
			return `{}`
		}
		out, _ := sjson.Set(`{}`, "filePath", s)
		return out
	default:
		return `{}`
	}
}

// stripCoordinates removes every repository coordinate or credential the
// model supplied, under any spelling.
func stripCoordinates(input string) (string, error) {
	var drop []string
	gjson.Parse(input).ForEach(func(k, _ gjson.Result) bool {
		if session.IsCoordinateKey(k.String()) {
			drop = append(drop, k.String())
		}
		return true
	})
	var err error
	for _, k := range drop {
		if input, err = sjson.Delete(input, escapePath(k)); err != nil {
			return "", err
		}
	}
	return input, nil
}

// withCoordinates adds the session's static parameters to input.
func withCoordinates(input string, sess session.State) (string, error) {
	var err error
	static := sess.Static()
	for _, k := range session.StaticKeys {
		v, ok := static[k]
		if !ok {
			continue
		}
		if input, err = sjson.Set(input, k, v); err != nil {
			return "", err
		}
	}
	return input, nil
}

func hasPathField(input string) bool {
	root := gjson.Parse(input)
	for _, f := range PathFields {
		v := root.Get(f)
		switch {
		case v.IsArray() && len(v.Array()) > 0:
			return true
		case v.Type == gjson.String && strings.TrimSpace(v.String()) != "":
			return true
		}
	}
	return false
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

func escapePath(k string) string { return pathEscaper.Replace(k) }
