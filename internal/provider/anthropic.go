package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/metrics"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/tools"
)

// NewAnthropicClient returns a client using API key from the env unless opts override it.
func NewAnthropicClient(opts ...option.RequestOption) *anthropic.Client {
	c := anthropic.NewClient(opts...)
	return &c
}

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest
const APIVersion = "2023-06-01"

// Invoker sends orchestrator model requests to the Messages API.
type Invoker struct {
	Client *anthropic.Client
	Tools  []tools.ToolDefinition
	log    *zap.Logger
}

func NewInvoker(client *anthropic.Client, toolDefs []tools.ToolDefinition, log *zap.Logger) *Invoker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invoker{Client: client, Tools: toolDefs, log: log}
}

// anthropicTools returns the definitions for the tools named in names.
func (i *Invoker) anthropicTools(names []string) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, n := range names {
		t := tools.Lookup(i.Tools, n)
		if t == nil {
			continue
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: t.InputSchema,
		}})
	}
	return out
}

// Params converts req into Messages API parameters.
func (i *Invoker) Params(req orchestrator.ModelRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.ModelID),
		MaxTokens:   req.InferenceParams.MaxTokens,
		Messages:    messageParams(req.Messages),
		Temperature: anthropic.Float(req.InferenceParams.Temperature),
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if ts := i.anthropicTools(req.Tools); len(ts) > 0 {
		params.Tools = ts
	}
	return params
}

// messageParams merges adjacent turns of the same role and makes sure the
// conversation opens with a user turn.
func messageParams(msgs []orchestrator.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs)+1)
	for _, m := range msgs {
		role := anthropic.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		if len(out) == 0 && role == anthropic.MessageParamRoleAssistant {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(orchestrator.LeadIn)))
		}
		block := anthropic.NewTextBlock(m.Content)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: []anthropic.ContentBlockParamUnion{block}})
	}
	return out
}

// InvokeModel sends req and returns the raw response JSON, which is the
// payload of the next ModelResponded step.
func (i *Invoker) InvokeModel(ctx context.Context, req orchestrator.ModelRequest) (string, error) {
	start := time.Now()
	msg, err := i.Client.Messages.New(ctx, i.Params(req))
	metrics.ObserveModelCall(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("invoke model %s: %w", req.ModelID, err)
	}
	i.log.Debug("model responded",
		zap.String("model", req.ModelID),
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)
	if raw := msg.RawJSON(); raw != "" {
		return raw, nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode model response: %w", err)
	}
	return string(b), nil
}
