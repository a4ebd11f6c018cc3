// Package bedrock adapts orchestrator steps to the Bedrock Agents custom
// orchestration contract: one event in, one action event out.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/tools"
)

const Version = "1.0"

// Action events.
const (
	EventInvokeModel = "INVOKE_MODEL"
	EventInvokeTool  = "INVOKE_TOOL"
	EventFinish      = "FINISH"
)

type Event struct {
	State   string  `json:"state"`
	Input   Input   `json:"input"`
	Context Context `json:"context"`
}

type Input struct {
	Text string `json:"text"`
}

type Context struct {
	SessionAttributes       map[string]string `json:"sessionAttributes"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes,omitempty"`
}

type Response struct {
	Version     string  `json:"version"`
	ActionEvent string  `json:"actionEvent"`
	Output      Output  `json:"output"`
	Context     Context `json:"context"`
}

type Output struct {
	Text  string `json:"text"`
	Trace Trace  `json:"trace"`
}

type Trace struct {
	Event TraceEvent `json:"event"`
}

type TraceEvent struct {
	Text string `json:"text"`
}

// StepContext converts e. Bedrock states START, MODEL_INVOKED and
// TOOL_INVOKED map to Start, ModelResponded and ToolResponded.
func (e Event) StepContext() (orchestrator.StepContext, error) {
	tag, err := orchestrator.ParseStateTag(e.State)
	if err != nil {
		return orchestrator.StepContext{}, err
	}
	return orchestrator.StepContext{
		State:   tag,
		Payload: e.Input.Text,
		Session: session.State(e.Context.SessionAttributes).Clone(),
	}, nil
}

// converseRequest is the INVOKE_MODEL body, in Converse API form.
type converseRequest struct {
	ModelID         string            `json:"modelId"`
	Messages        []converseMessage `json:"messages"`
	System          []textBlock       `json:"system,omitempty"`
	InferenceConfig inferenceConfig   `json:"inferenceConfig"`
	ToolConfig      *toolConfig       `json:"toolConfig,omitempty"`
}

type converseMessage struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type textBlock struct {
	Text string `json:"text"`
}

type inferenceConfig struct {
	MaxTokens   int64   `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type toolConfig struct {
	Tools []toolEntry `json:"tools"`
}

type toolEntry struct {
	ToolSpec toolSpec `json:"toolSpec"`
}

type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolUse struct {
	ToolUse struct {
		ToolUseID string          `json:"toolUseId"`
		Name      string          `json:"name"`
		Input     json.RawMessage `json:"input"`
	} `json:"toolUse"`
}

// FromResult renders res as a Bedrock action event. defs supply the tool
// schemas advertised with model requests; unknown names get an open schema.
func FromResult(res orchestrator.Result, defs []tools.ToolDefinition) (Response, error) {
	out := Response{
		Version: Version,
		Output:  Output{Trace: Trace{Event: TraceEvent{Text: res.Action.Trace()}}},
		Context: Context{SessionAttributes: map[string]string(res.Session.Clone())},
	}
	switch a := res.Action.(type) {
	case orchestrator.InvokeModel:
		b, err := json.Marshal(converse(a.Request, defs))
		if err != nil {
			return Response{}, fmt.Errorf("encode model request: %w", err)
		}
		out.ActionEvent = EventInvokeModel
		out.Output.Text = string(b)
	case orchestrator.InvokeTool:
		var tu toolUse
		tu.ToolUse.ToolUseID = a.ToolUseID
		tu.ToolUse.Name = a.ToolName
		tu.ToolUse.Input = a.Input
		b, err := json.Marshal(tu)
		if err != nil {
			return Response{}, fmt.Errorf("encode tool use: %w", err)
		}
		out.ActionEvent = EventInvokeTool
		out.Output.Text = string(b)
	case orchestrator.Finish:
		out.ActionEvent = EventFinish
		out.Output.Text = a.FinalText
	default:
		return Response{}, fmt.Errorf("unexpected action %T", res.Action)
	}
	return out, nil
}

func converse(req orchestrator.ModelRequest, defs []tools.ToolDefinition) converseRequest {
	cr := converseRequest{
		ModelID:         req.ModelID,
		InferenceConfig: inferenceConfig{MaxTokens: req.InferenceParams.MaxTokens, Temperature: req.InferenceParams.Temperature},
	}
	if req.SystemInstruction != "" {
		cr.System = []textBlock{{Text: req.SystemInstruction}}
	}
	cr.Messages = alternate(req.Messages)
	if len(req.Tools) > 0 {
		tc := &toolConfig{}
		for _, name := range req.Tools {
			spec := toolSpec{Name: name, InputSchema: map[string]any{"json": map[string]any{"type": "object"}}}
			if def := tools.Lookup(defs, name); def != nil {
				spec.Description = def.Description
				schema := map[string]any{"type": "object", "properties": def.InputSchema.Properties}
				if len(def.InputSchema.Required) > 0 {
					schema["required"] = def.InputSchema.Required
				}
				spec.InputSchema = map[string]any{"json": schema}
			}
			tc.Tools = append(tc.Tools, toolEntry{ToolSpec: spec})
		}
		cr.ToolConfig = tc
	}
	return cr
}

// alternate opens with a user turn and merges adjacent turns of the same
// role, as the Converse API requires.
func alternate(msgs []orchestrator.Message) []converseMessage {
	out := make([]converseMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		if len(out) == 0 && role == "assistant" {
			out = append(out, converseMessage{Role: "user", Content: []textBlock{{Text: orchestrator.LeadIn}}})
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, textBlock{Text: m.Content})
			continue
		}
		out = append(out, converseMessage{Role: role, Content: []textBlock{{Text: m.Content}}})
	}
	return out
}

// Handler routes Bedrock events through an orchestrator.
type Handler struct {
	Orch  *orchestrator.Orchestrator
	Tools []tools.ToolDefinition
	// Observe, when set, sees every routed step.
	Observe func(orchestrator.StateTag, orchestrator.Result)
}

// Handle performs one step. Unrecognized states return an error matching
// orchestrator.ErrUnhandledState.
func (h *Handler) Handle(_ context.Context, e Event) (Response, error) {
	step, err := e.StepContext()
	if err != nil {
		return Response{}, err
	}
	res, err := h.Orch.Route(step)
	if err != nil {
		return Response{}, err
	}
	if h.Observe != nil {
		h.Observe(step.State, res)
	}
	return FromResult(res, h.Tools)
}
