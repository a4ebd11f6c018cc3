package host_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/buildfile-agent/internal/host"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/internal/store"
	"github.com/petasbytes/buildfile-agent/memory"
	"github.com/petasbytes/buildfile-agent/tools"
)

const (
	toolUseReply = `{"content":[{"type":"tool_use","id":"toolu_1","name":"ReadFile","input":{"filePaths":["go.mod"]}}]}`
	textReply    = `{"content":[{"type":"text","text":"FROM golang:1.24\nCOPY . .\n"}]}`
	startPayload = "REPO_OWNER=acme\nREPO_NAME=widgets\nBRANCH=main\n\nRepository files:\n- go.mod"
)

// scriptedModel replays responses in order and records every request.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []orchestrator.ModelRequest
}

func (m *scriptedModel) InvokeModel(ctx context.Context, req orchestrator.ModelRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return toolUseReply, nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

type recordingTool struct {
	inputs []json.RawMessage
	out    string
	err    error
}

func (rt *recordingTool) def() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name: "ReadFile",
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			rt.inputs = append(rt.inputs, input)
			return rt.out, rt.err
		},
	}
}

func newRunner(model host.ModelInvoker, tool *recordingTool, st store.Store, cfg host.Config) *host.Runner {
	return host.New(orchestrator.New(orchestrator.Options{}), model, []tools.ToolDefinition{tool.def()}, st, cfg, nil)
}

func lastUserContent(req orchestrator.ModelRequest) string {
	return req.Messages[len(req.Messages)-1].Content
}

func TestRun_FetchesThenFinishes(t *testing.T) {
	model := &scriptedModel{responses: []string{toolUseReply, textReply}}
	tool := &recordingTool{out: "module example.com/widgets"}
	st := store.NewMemoryStore()
	r := newRunner(model, tool, st, host.Config{})

	out, err := r.Run(context.Background(), "conv-1", startPayload, nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.ReasonCompleted, out.Reason)
	assert.Equal(t, "FROM golang:1.24\nCOPY . .\n", out.FinalText)
	assert.Equal(t, 4, out.Steps)

	require.Len(t, tool.inputs, 1)
	assert.JSONEq(t, `{"filePaths":["go.mod"],"BRANCH":"main","REPO_OWNER":"acme","REPO_NAME":"widgets"}`, string(tool.inputs[0]))

	require.Len(t, model.requests, 2)
	assert.Equal(t, "module example.com/widgets", lastUserContent(model.requests[1]))

	saved, err := st.Load(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, session.State{"BRANCH": "main", "REPO_OWNER": "acme", "REPO_NAME": "widgets"}, saved)

	roles := make([]string, 0, len(out.Transcript))
	for _, m := range out.Transcript {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{memory.RoleUser, memory.RoleAssistant, memory.RoleUser, memory.RoleAssistant}, roles)
	assert.Equal(t, "ReadFile", out.Transcript[1].Tool)
}

func TestRun_SeedFillsMissingCoordinates(t *testing.T) {
	model := &scriptedModel{responses: []string{toolUseReply, textReply}}
	tool := &recordingTool{out: "ok"}
	r := newRunner(model, tool, nil, host.Config{})

	seed := session.State{session.KeyBranch: "dev", session.KeyRepoOwner: "acme", session.KeyRepoName: "widgets"}
	_, err := r.Run(context.Background(), "conv-seed", "REPO_OWNER=other\nsome description", seed)
	require.NoError(t, err)

	require.Len(t, tool.inputs, 1)
	assert.JSONEq(t, `{"filePaths":["go.mod"],"BRANCH":"dev","REPO_OWNER":"acme","REPO_NAME":"widgets"}`, string(tool.inputs[0]))
}

func TestRun_StoredSessionWinsOverSeed(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(context.Background(), "conv-2", session.State{session.KeyBranch: "release"}))
	model := &scriptedModel{responses: []string{textReply}}
	r := newRunner(model, &recordingTool{}, st, host.Config{})

	out, err := r.Run(context.Background(), "conv-2", startPayload, session.State{session.KeyBranch: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "release", out.Session[session.KeyBranch])
}

func TestRun_ToolErrorBecomesPayload(t *testing.T) {
	model := &scriptedModel{responses: []string{toolUseReply, textReply}}
	tool := &recordingTool{err: errors.New("boom")}
	r := newRunner(model, tool, nil, host.Config{})

	out, err := r.Run(context.Background(), "conv-3", startPayload, nil)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ReasonCompleted, out.Reason)
	require.Len(t, model.requests, 2)
	assert.Equal(t, "error: boom", lastUserContent(model.requests[1]))
}

func TestRun_ModelErrorIsReturned(t *testing.T) {
	model := &scriptedModel{err: errors.New("throttled")}
	r := newRunner(model, &recordingTool{}, nil, host.Config{})

	_, err := r.Run(context.Background(), "conv-4", startPayload, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestRun_StepBudgetExhausted(t *testing.T) {
	model := &scriptedModel{}
	tool := &recordingTool{out: "more"}
	r := newRunner(model, tool, nil, host.Config{MaxSteps: 3})

	out, err := r.Run(context.Background(), "conv-5", startPayload, nil)
	assert.ErrorIs(t, err, host.ErrStepBudgetExhausted)
	assert.Equal(t, 3, out.Steps)
	assert.Len(t, tool.inputs, 1)
}

func TestRun_MissingCoordinatesFinishWithoutTool(t *testing.T) {
	model := &scriptedModel{responses: []string{toolUseReply}}
	tool := &recordingTool{}
	r := newRunner(model, tool, nil, host.Config{})

	out, err := r.Run(context.Background(), "conv-6", "REPO_OWNER=acme\nBRANCH=main", nil)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ReasonMissingParams, out.Reason)
	assert.Contains(t, out.FinalText, "REPO_NAME")
	assert.Empty(t, tool.inputs)
}

type slowModel struct{}

func (slowModel) InvokeModel(ctx context.Context, _ orchestrator.ModelRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Second):
		return textReply, nil
	}
}

func TestRun_StepTimeout(t *testing.T) {
	r := newRunner(slowModel{}, &recordingTool{}, nil, host.Config{StepTimeout: 20 * time.Millisecond})

	_, err := r.Run(context.Background(), "conv-7", startPayload, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
