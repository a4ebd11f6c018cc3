package orchestrator

import (
	"strings"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// StateTag identifies which transition a step performs.
type StateTag int

const (
	stateInvalid StateTag = iota
	StateStart
	StateModelResponded
	StateToolResponded
)

var stateNames = map[StateTag]string{
	StateStart:          "Start",
	StateModelResponded: "ModelResponded",
	StateToolResponded:  "ToolResponded",
}

// Accepted spellings, including the Bedrock custom-orchestration names.
var stateAliases = map[string]StateTag{
	"start":          StateStart,
	"modelresponded": StateModelResponded,
	"model_invoked":  StateModelResponded,
	"toolresponded":  StateToolResponded,
	"tool_invoked":   StateToolResponded,
}

// ParseStateTag maps a textual tag to a StateTag. Unknown tags yield an
// *UnhandledStateError.
func ParseStateTag(s string) (StateTag, error) {
	if t, ok := stateAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return stateInvalid, &UnhandledStateError{Tag: s}
}

func (t StateTag) String() string {
	if n, ok := stateNames[t]; ok {
		return n
	}
	return "Invalid"
}

func (t StateTag) MarshalText() ([]byte, error) {
	if _, ok := stateNames[t]; !ok {
		return nil, &UnhandledStateError{Tag: t.String()}
	}
	return []byte(t.String()), nil
}

func (t *StateTag) UnmarshalText(b []byte) error {
	v, err := ParseStateTag(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// StepContext is the input of one step.
type StepContext struct {
	State   StateTag
	Payload string
	Session session.State
}

// Invocation is the wire form of a step, as posted by a host.
type Invocation struct {
	StateTag     string            `json:"stateTag"`
	Payload      string            `json:"payload"`
	SessionState map[string]string `json:"sessionState"`
}

// StepContext validates the tag and returns the typed step.
func (in Invocation) StepContext() (StepContext, error) {
	tag, err := ParseStateTag(in.StateTag)
	if err != nil {
		return StepContext{}, err
	}
	return StepContext{State: tag, Payload: in.Payload, Session: session.State(in.SessionState)}, nil
}
