package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/bedrock"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(orchestrator.New(orchestrator.Options{}), nil, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func post(s *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s := setupTestServer(t)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
		assert.Equal(t, int64(defaultMaxBodyBytes), s.config.MaxBodyBytes)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(orchestrator.New(orchestrator.Options{}), nil, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when orchestrator is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	s := setupTestServer(t)
	post(s, "/v1/step", `{"stateTag":"Start","payload":"BRANCH=main"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buildfile_agent_orchestrator_steps_total")
}

func TestHandleStep(t *testing.T) {
	t.Run("start invokes model", func(t *testing.T) {
		s := setupTestServer(t)
		rec := post(s, "/v1/step", `{"stateTag":"Start","payload":"BRANCH=main\nREPO_OWNER=acme\nREPO_NAME=widgets","sessionState":{}}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var env orchestrator.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, orchestrator.KindInvokeModel, env.ActionKind)
		assert.Equal(t, map[string]string{"BRANCH": "main", "REPO_OWNER": "acme", "REPO_NAME": "widgets"}, env.SessionState)
		assert.NotEmpty(t, env.TraceNote)

		action, err := env.DecodeAction()
		require.NoError(t, err)
		assert.Equal(t, orchestrator.DefaultModelID, action.(orchestrator.InvokeModel).Request.ModelID)
	})

	t.Run("tool call carries session coordinates", func(t *testing.T) {
		s := setupTestServer(t)
		rec := post(s, "/v1/step", `{
			"stateTag":"ModelResponded",
			"payload":"{\"toolName\":\"ReadFile\",\"toolInput\":{\"filePath\":\"go.mod\",\"REPO_OWNER\":\"evil\"}}",
			"sessionState":{"BRANCH":"main","REPO_OWNER":"acme","REPO_NAME":"widgets"}
		}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var env orchestrator.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		action, err := env.DecodeAction()
		require.NoError(t, err)
		it := action.(orchestrator.InvokeTool)
		assert.JSONEq(t, `{"filePath":"go.mod","BRANCH":"main","REPO_OWNER":"acme","REPO_NAME":"widgets"}`, string(it.Input))
	})

	t.Run("large tool output is truncated, not rejected", func(t *testing.T) {
		s := setupTestServer(t)
		inv, err := json.Marshal(orchestrator.Invocation{
			StateTag:     "ToolResponded",
			Payload:      strings.Repeat("x", 1_100_000),
			SessionState: map[string]string{"BRANCH": "main", "REPO_OWNER": "acme", "REPO_NAME": "widgets"},
		})
		require.NoError(t, err)
		rec := post(s, "/v1/step", string(inv))

		require.Equal(t, http.StatusOK, rec.Code)
		var env orchestrator.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		action, err := env.DecodeAction()
		require.NoError(t, err)
		msgs := action.(orchestrator.InvokeModel).Request.Messages
		require.NotEmpty(t, msgs)
		assert.Len(t, msgs[len(msgs)-1].Content, orchestrator.DefaultMaxToolChars)
	})

	t.Run("unknown state tag is rejected", func(t *testing.T) {
		s := setupTestServer(t)
		rec := post(s, "/v1/step", `{"stateTag":"Paused","payload":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body is rejected", func(t *testing.T) {
		s := setupTestServer(t)
		rec := post(s, "/v1/step", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		s, err := NewServer(orchestrator.New(orchestrator.Options{}), nil, zap.NewNop(), &Config{MaxBodyBytes: 64})
		require.NoError(t, err)
		body := `{"stateTag":"Start","payload":"` + strings.Repeat("a", 200) + `"}`
		rec := post(s, "/v1/step", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleBedrock(t *testing.T) {
	s := setupTestServer(t)

	body, err := json.Marshal(bedrock.Event{
		State:   "MODEL_INVOKED",
		Input:   bedrock.Input{Text: `{"completion":"FROM alpine"}`},
		Context: bedrock.Context{SessionAttributes: map[string]string{"BRANCH": "main"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/bedrock", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp bedrock.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, bedrock.EventFinish, resp.ActionEvent)
	assert.Equal(t, "FROM alpine", resp.Output.Text)

	rec = post(s, "/v1/bedrock", `{"state":"RETURN_CONTROL"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
