package provider_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/provider"
	"github.com/petasbytes/buildfile-agent/tools"
)

type capture struct {
	method string
	url    string
	body   []byte
}

type fakeTransport struct {
	respStatus int
	respBody   []byte
	captured   *capture
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if f.captured != nil {
		f.captured.method = req.Method
		f.captured.url = req.URL.String()
		f.captured.body = b
	}
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newClientWithTransport(rt http.RoundTripper) *anthropic.Client {
	return provider.NewAnthropicClient(
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
}

type reqBody struct {
	Model       string  `json:"model"`
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	System      []struct {
		Text string `json:"text"`
	} `json:"system"`
	Tools []struct {
		Name string `json:"name"`
	} `json:"tools"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"messages"`
}

func newInvoker(t *testing.T, rt http.RoundTripper) *provider.Invoker {
	t.Helper()
	f, err := tools.NewGitHubFetcher(tools.FetcherConfig{})
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}
	return provider.NewInvoker(newClientWithTransport(rt), tools.Registry(f), nil)
}

func TestInvokeModel_SendsRequestAndReturnsRawJSON(t *testing.T) {
	resp := `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-7-sonnet-latest","content":[{"type":"tool_use","id":"toolu_1","name":"ReadFile","input":{"filePaths":["go.mod"]}}],"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5}}`
	capReq := &capture{}
	inv := newInvoker(t, &fakeTransport{respStatus: 200, respBody: []byte(resp), captured: capReq})

	req := orchestrator.ModelRequest{
		ModelID:           string(provider.DefaultModel),
		SystemInstruction: "be terse",
		InferenceParams:   orchestrator.InferenceParams{MaxTokens: 512, Temperature: 0.2},
		Tools:             []string{"ReadFile", "Unknown"},
		Messages: []orchestrator.Message{
			{Role: "assistant", Content: "use these results"},
			{Role: "user", Content: "module x"},
		},
	}
	out, err := inv.InvokeModel(t.Context(), req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != resp {
		t.Fatalf("want raw response, got %s", out)
	}

	if capReq.method != http.MethodPost || !strings.HasSuffix(strings.Split(capReq.url, "?")[0], "/v1/messages") {
		t.Fatalf("unexpected request: %s %s", capReq.method, capReq.url)
	}
	var body reqBody
	if err := json.Unmarshal(capReq.body, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if body.Model != string(provider.DefaultModel) || body.MaxTokens != 512 || body.Temperature != 0.2 {
		t.Fatalf("unexpected params: %+v", body)
	}
	if len(body.System) != 1 || body.System[0].Text != "be terse" {
		t.Fatalf("unexpected system: %+v", body.System)
	}
	if len(body.Tools) != 1 || body.Tools[0].Name != "ReadFile" {
		t.Fatalf("unexpected tools: %+v", body.Tools)
	}
	// Leading assistant turn gets a user lead-in.
	if len(body.Messages) != 3 || body.Messages[0].Role != "user" || body.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestInvokeModel_ResponseFeedsOrchestrator(t *testing.T) {
	resp := `{"id":"msg_2","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"FROM alpine"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`
	inv := newInvoker(t, &fakeTransport{respStatus: 200, respBody: []byte(resp)})

	out, err := inv.InvokeModel(t.Context(), orchestrator.ModelRequest{ModelID: "m", InferenceParams: orchestrator.InferenceParams{MaxTokens: 10}, Messages: []orchestrator.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	res, err := orchestrator.New(orchestrator.Options{}).Route(orchestrator.StepContext{State: orchestrator.StateModelResponded, Payload: out})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	fin, ok := res.Action.(orchestrator.Finish)
	if !ok || fin.FinalText != "FROM alpine" {
		t.Fatalf("unexpected action: %#v", res.Action)
	}
}

func TestInvokeModel_MergesAdjacentTurns(t *testing.T) {
	capReq := &capture{}
	inv := newInvoker(t, &fakeTransport{respStatus: 200, respBody: []byte(`{"content":[],"role":"assistant"}`), captured: capReq})

	_, err := inv.InvokeModel(t.Context(), orchestrator.ModelRequest{
		ModelID:         "m",
		InferenceParams: orchestrator.InferenceParams{MaxTokens: 10},
		Messages: []orchestrator.Message{
			{Role: "user", Content: "tree"},
			{Role: "assistant", Content: "ReadFile go.mod"},
			{Role: "assistant", Content: "use these results"},
			{Role: "user", Content: "module x"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var body reqBody
	if err := json.Unmarshal(capReq.body, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if len(body.Messages) != 3 || len(body.Messages[1].Content) != 2 {
		t.Fatalf("expected merged assistant turn, got %+v", body.Messages)
	}
}

func TestInvokeModel_APIError(t *testing.T) {
	inv := newInvoker(t, &fakeTransport{respStatus: 400, respBody: []byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)})

	_, err := inv.InvokeModel(t.Context(), orchestrator.ModelRequest{ModelID: "m", InferenceParams: orchestrator.InferenceParams{MaxTokens: 10}, Messages: []orchestrator.Message{{Role: "user", Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "invoke model m") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
