package orchestrator

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultModelID      = "claude-3-7-sonnet-latest"
	DefaultToolName     = "ReadFile"
	DefaultMaxTokens    = 4096
	DefaultMaxToolChars = 120_000

	// maxHistoryEntryChars bounds each stored history turn.
	maxHistoryEntryChars = 8_000
)

// Options configure an Orchestrator. The zero value is usable.
type Options struct {
	ModelID     string
	ToolName    string
	MaxTokens   int64
	Temperature float64
	// MaxToolChars caps the tool output forwarded to the model, in characters.
	MaxToolChars int
	// HistoryTurns enables history under session.KeyHistory when > 0.
	HistoryTurns int
	// HistoryBudget additionally bounds the prepended history by estimated cost; <= 0 disables it.
	HistoryBudget int
	Logger        *zap.Logger
}

// Orchestrator routes steps. It is safe for concurrent use; it holds only
// immutable configuration.
type Orchestrator struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options) *Orchestrator {
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	if opts.ToolName == "" {
		opts.ToolName = DefaultToolName
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxToolChars <= 0 {
		opts.MaxToolChars = DefaultMaxToolChars
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{opts: opts, log: log}
}

// ToolName is the only tool the model may call.
func (o *Orchestrator) ToolName() string { return o.opts.ToolName }

// Stats describe one routed step for observability. They never contain
// payload text.
type Stats struct {
	PayloadRunes        int
	ToolOutputRunes     int
	ToolOutputTruncated bool
	HistoryTurns        int
	ExtractedKeys       []string
}

// Result is the outcome of one step.
type Result struct {
	Action  Action
	Session session.State
	Stats   Stats
}

// Envelope converts r to its wire form.
func (r Result) Envelope() (Envelope, error) {
	body, err := marshalAction(r.Action)
	if err != nil {
		return Envelope{}, err
	}
	sess := map[string]string(r.Session.Clone())
	return Envelope{
		ActionKind:   r.Action.Kind(),
		ActionBody:   body,
		TraceNote:    r.Action.Trace(),
		SessionState: sess,
	}, nil
}

// Route performs one step. The only error is an *UnhandledStateError; every
// other condition resolves to an Action.
func (o *Orchestrator) Route(step StepContext) (Result, error) {
	var (
		res Result
		err error
	)
	switch step.State {
	case StateStart:
		res, err = o.start(step)
	case StateModelResponded:
		res, err = o.modelResponded(step)
	case StateToolResponded:
		res, err = o.toolResponded(step)
	default:
		return Result{}, &UnhandledStateError{Tag: step.State.String()}
	}
	if err != nil {
		return Result{}, err
	}
	res.Stats.PayloadRunes = utf8.RuneCountInString(step.Payload)
	o.log.Debug("step routed",
		zap.Stringer("state", step.State),
		zap.String("action", string(res.Action.Kind())),
		zap.String("trace", res.Action.Trace()),
		zap.Any("session", res.Session.Redacted()),
	)
	return res, nil
}

func (o *Orchestrator) newRequest(messages []Message) ModelRequest {
	return ModelRequest{
		ModelID:           o.opts.ModelID,
		Messages:          messages,
		SystemInstruction: systemInstruction(o.opts.ToolName),
		InferenceParams: InferenceParams{
			MaxTokens:   o.opts.MaxTokens,
			Temperature: o.opts.Temperature,
		},
		Tools: []string{o.opts.ToolName},
	}
}

func (o *Orchestrator) historyEnabled() bool { return o.opts.HistoryTurns > 0 }
