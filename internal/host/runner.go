package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/metrics"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/internal/store"
	"github.com/petasbytes/buildfile-agent/internal/telemetry"
	"github.com/petasbytes/buildfile-agent/memory"
	"github.com/petasbytes/buildfile-agent/tools"
)

// ErrStepBudgetExhausted is returned when a conversation does not finish
// within Config.MaxSteps routed steps.
var ErrStepBudgetExhausted = errors.New("step budget exhausted")

const DefaultMaxSteps = 12

// ModelInvoker performs an InvokeModel action and returns the raw response
// payload for the next ModelResponded step.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, req orchestrator.ModelRequest) (string, error)
}

type Config struct {
	MaxSteps int `koanf:"max_steps"`
	// StepTimeout bounds each model or tool call; <= 0 disables it.
	StepTimeout time.Duration `koanf:"step_timeout"`
}

type Runner struct {
	Orch  *orchestrator.Orchestrator
	Model ModelInvoker
	Tools []tools.ToolDefinition
	Store store.Store
	cfg   Config
	log   *zap.Logger
}

func New(orch *orchestrator.Orchestrator, model ModelInvoker, toolDefs []tools.ToolDefinition, st store.Store, cfg Config, log *zap.Logger) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Orch: orch, Model: model, Tools: toolDefs, Store: st, cfg: cfg, log: log}
}

// Outcome is the result of a finished conversation.
type Outcome struct {
	FinalText string
	Reason    orchestrator.FinishReason
	Steps     int
	Session   session.State
	// Transcript records what was exchanged, in order.
	Transcript []memory.Message
}

// Run drives conversationID from initialPayload until the orchestrator
// finishes. seed supplies session keys the stored session lacks, so callers
// can pin coordinates the payload does not carry.
func (r *Runner) Run(ctx context.Context, conversationID, initialPayload string, seed session.State) (Outcome, error) {
	ctx = telemetry.WithConversationID(ctx, conversationID)
	log := r.log.With(zap.String("conversation_id", conversationID))

	out := Outcome{Transcript: []memory.Message{{Role: memory.RoleUser, Text: initialPayload}}}
	state := orchestrator.StateStart
	payload := initialPayload

	for step := 1; step <= r.cfg.MaxSteps; step++ {
		sess, err := r.load(ctx, conversationID)
		if err != nil {
			return out, err
		}
		if step == 1 {
			sess = sess.MergeMissing(seed)
		}

		telemetry.PersistPayload(ctx, step, state.String(), []byte(payload))
		telemetry.EmitPayloadFeatures(ctx, state.String(), payload)

		res, err := r.Orch.Route(orchestrator.StepContext{State: state, Payload: payload, Session: sess})
		if err != nil {
			return out, fmt.Errorf("route step %d: %w", step, err)
		}
		out.Steps = step
		out.Session = res.Session
		r.observe(step, state, res)
		log.Info("step routed",
			zap.Int("step", step),
			zap.Stringer("state", state),
			zap.String("action", string(res.Action.Kind())),
			zap.String("trace", res.Action.Trace()),
		)

		if err := r.Store.Save(ctx, conversationID, res.Session); err != nil {
			return out, fmt.Errorf("save session: %w", err)
		}

		switch a := res.Action.(type) {
		case orchestrator.InvokeModel:
			resp, err := r.invokeModel(ctx, a.Request)
			if err != nil {
				return out, err
			}
			state, payload = orchestrator.StateModelResponded, resp
		case orchestrator.InvokeTool:
			out.Transcript = append(out.Transcript, memory.Message{Role: memory.RoleAssistant, Text: string(a.Input), Tool: a.ToolName})
			payload = r.execTool(ctx, a)
			state = orchestrator.StateToolResponded
			out.Transcript = append(out.Transcript, memory.Message{Role: memory.RoleUser, Text: payload, Tool: a.ToolName})
		case orchestrator.Finish:
			out.FinalText = a.FinalText
			out.Reason = a.Reason
			out.Transcript = append(out.Transcript, memory.Message{Role: memory.RoleAssistant, Text: a.FinalText})
			log.Info("conversation finished", zap.Int("steps", step), zap.String("reason", string(a.Reason)))
			return out, nil
		default:
			return out, fmt.Errorf("unexpected action %T", res.Action)
		}
	}
	log.Warn("step budget exhausted", zap.Int("max_steps", r.cfg.MaxSteps))
	return out, fmt.Errorf("%w after %d steps", ErrStepBudgetExhausted, r.cfg.MaxSteps)
}

func (r *Runner) load(ctx context.Context, id string) (session.State, error) {
	sess, err := r.Store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return session.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (r *Runner) observe(step int, state orchestrator.StateTag, res orchestrator.Result) {
	var reason string
	if f, ok := res.Action.(orchestrator.Finish); ok {
		reason = string(f.Reason)
	}
	metrics.ObserveStep(state.String(), string(res.Action.Kind()), reason, res.Stats.ToolOutputTruncated)
	telemetry.Emit("step_routed", map[string]any{
		"step":                  step,
		"state":                 state.String(),
		"action":                string(res.Action.Kind()),
		"trace":                 res.Action.Trace(),
		"payload_runes":         res.Stats.PayloadRunes,
		"tool_output_runes":     res.Stats.ToolOutputRunes,
		"tool_output_truncated": res.Stats.ToolOutputTruncated,
		"history_turns":         res.Stats.HistoryTurns,
		"session_keys":          res.Session.Keys(),
	})
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.StepTimeout)
}

func (r *Runner) invokeModel(ctx context.Context, req orchestrator.ModelRequest) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	resp, err := r.Model.InvokeModel(ctx, req)
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	return resp, nil
}

// execTool runs the named tool. Failures become the tool payload so the
// model can react to them.
func (r *Runner) execTool(ctx context.Context, a orchestrator.InvokeTool) string {
	convID, _ := telemetry.ConversationIDFromContext(ctx)

	emit := func(durationMs int64, inputSize int, outputSize int, errStr string) {
		fields := map[string]any{
			"tool_name":       a.ToolName,
			"tool_use_id":     a.ToolUseID,
			"duration_ms":     durationMs,
			"input_size":      inputSize,
			"output_size":     outputSize,
			"conversation_id": convID,
		}
		if errStr != "" {
			fields["error"] = errStr
		} else {
			fields["error"] = nil
		}
		telemetry.Emit("tool_exec", fields)
	}

	start := time.Now()
	inSize := len(a.Input)

	def := tools.Lookup(r.Tools, a.ToolName)
	if def == nil {
		emit(time.Since(start).Milliseconds(), inSize, 0, "tool not found")
		return "error: tool not found: " + a.ToolName
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	resp, err := def.Function(ctx, a.Input)
	if err != nil {
		// Telemetry gets a generic string; the detail goes back to the model.
		emit(time.Since(start).Milliseconds(), inSize, 0, "tool error")
		return "error: " + err.Error()
	}
	emit(time.Since(start).Milliseconds(), inSize, len(resp), "")
	return resp
}
