package orchestrator

import (
	"encoding/json"
	"fmt"
)

// Kind names an Action variant on the wire.
type Kind string

const (
	KindInvokeModel Kind = "InvokeModel"
	KindInvokeTool  Kind = "InvokeTool"
	KindFinish      Kind = "Finish"
)

// Action is the host's next instruction. The set of variants is closed.
type Action interface {
	Kind() Kind
	Trace() string
	isAction()
}

// Message is one entry of a model request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type InferenceParams struct {
	MaxTokens   int64   `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// ModelRequest is the complete payload for the model-invocation collaborator.
type ModelRequest struct {
	ModelID           string          `json:"modelId"`
	Messages          []Message       `json:"messages"`
	SystemInstruction string          `json:"systemInstruction,omitempty"`
	InferenceParams   InferenceParams `json:"inferenceParams"`
	// Tools lists the tool names the model may call.
	Tools []string `json:"tools,omitempty"`
}

type InvokeModel struct {
	Request   ModelRequest `json:"request"`
	TraceNote string       `json:"-"`
}

type InvokeTool struct {
	ToolName  string          `json:"toolName"`
	ToolUseID string          `json:"toolUseId"`
	Input     json.RawMessage `json:"toolInput"`
	TraceNote string          `json:"-"`
}

// FinishReason classifies why a conversation ended.
type FinishReason string

const (
	ReasonCompleted     FinishReason = "completed"
	ReasonMalformed     FinishReason = "malformed_response"
	ReasonUnknownTool   FinishReason = "unknown_tool"
	ReasonMissingParams FinishReason = "missing_params"
)

type Finish struct {
	FinalText string       `json:"finalText"`
	Reason    FinishReason `json:"reason"`
	TraceNote string       `json:"-"`
}

func (InvokeModel) Kind() Kind { return KindInvokeModel }
func (InvokeTool) Kind() Kind  { return KindInvokeTool }
func (Finish) Kind() Kind      { return KindFinish }

func (a InvokeModel) Trace() string { return a.TraceNote }
func (a InvokeTool) Trace() string  { return a.TraceNote }
func (a Finish) Trace() string      { return a.TraceNote }

func (InvokeModel) isAction() {}
func (InvokeTool) isAction()  {}
func (Finish) isAction()      {}

// Envelope is the wire form of a step result.
type Envelope struct {
	ActionKind   Kind              `json:"actionKind"`
	ActionBody   json.RawMessage   `json:"actionBody"`
	TraceNote    string            `json:"traceNote"`
	SessionState map[string]string `json:"sessionState"`
}

// DecodeAction rebuilds the Action carried by e.
func (e Envelope) DecodeAction() (Action, error) {
	switch e.ActionKind {
	case KindInvokeModel:
		var a InvokeModel
		if err := json.Unmarshal(e.ActionBody, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.ActionKind, err)
		}
		a.TraceNote = e.TraceNote
		return a, nil
	case KindInvokeTool:
		var a InvokeTool
		if err := json.Unmarshal(e.ActionBody, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.ActionKind, err)
		}
		a.TraceNote = e.TraceNote
		return a, nil
	case KindFinish:
		var a Finish
		if err := json.Unmarshal(e.ActionBody, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.ActionKind, err)
		}
		a.TraceNote = e.TraceNote
		return a, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", e.ActionKind)
	}
}
