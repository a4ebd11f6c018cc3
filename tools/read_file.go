package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/go-github/v57/github"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petasbytes/buildfile-agent/internal/metrics"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/safety"
	"github.com/petasbytes/buildfile-agent/internal/session"
)

// ReadFileToolName is the tool identifier the model is told to call.
const ReadFileToolName = orchestrator.DefaultToolName

// ReadFileInput is the part of the input the model fills in. Repository
// coordinates are added from the session before the tool runs.
type ReadFileInput struct {
	FilePaths []string `json:"filePaths" jsonschema_description:"File paths relative to the repository root."`
}

const truncationSentinel = "\n-- truncated --\n"

var ReadFileInputSchema = GenerateSchema[ReadFileInput]()

// ReadFileDefinition binds the ReadFile tool to f.
func ReadFileDefinition(f *GitHubFetcher) ToolDefinition {
	return ToolDefinition{
		Name:        ReadFileToolName,
		Description: "Read one or more files from the repository being containerized. Pass paths relative to the repository root in filePaths.",
		InputSchema: ReadFileInputSchema,
		Function:    f.ReadFile,
	}
}

// FetchRequest is a complete file-fetch call.
type FetchRequest struct {
	Owner string
	Repo  string
	Ref   string
	Paths []string
	Token string
}

// FileResult is the outcome for one requested path. Exactly one of Content
// and Error is meaningful.
type FileResult struct {
	Path      string `json:"path"`
	SourceURL string `json:"source_url,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Length    int    `json:"length,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ParseFetchRequest reads a merged tool input: session coordinates plus the
// model's path fields. Paths keep their first-seen order without duplicates.
func ParseFetchRequest(input json.RawMessage) (FetchRequest, error) {
	if !gjson.ValidBytes(input) {
		return FetchRequest{}, safety.ToolError{Code: safety.CodeInvalidPath, Message: "tool input is not valid JSON"}
	}
	root := gjson.ParseBytes(input)
	req := FetchRequest{
		Owner: root.Get(session.KeyRepoOwner).String(),
		Repo:  root.Get(session.KeyRepoName).String(),
		Ref:   root.Get(session.KeyBranch).String(),
		Token: root.Get(session.KeyAccessToken).String(),
	}
	seen := map[string]bool{}
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		req.Paths = append(req.Paths, p)
	}
	for _, field := range orchestrator.PathFields {
		v := root.Get(field)
		if v.IsArray() {
			for _, item := range v.Array() {
				add(item.String())
			}
			continue
		}
		if v.Type == gjson.String {
			add(v.String())
		}
	}
	var missing []string
	if req.Owner == "" {
		missing = append(missing, session.KeyRepoOwner)
	}
	if req.Repo == "" {
		missing = append(missing, session.KeyRepoName)
	}
	if len(missing) > 0 {
		return FetchRequest{}, safety.ToolError{Code: safety.CodeMissingParameter, Message: "missing required parameters: " + strings.Join(missing, ", ")}
	}
	return req, nil
}

// ReadFile is the tool handler: it parses the merged input, fetches every
// path and returns the results as a JSON array.
func (f *GitHubFetcher) ReadFile(ctx context.Context, input json.RawMessage) (string, error) {
	req, err := ParseFetchRequest(input)
	if err != nil {
		return "", err
	}
	results, err := f.FetchFiles(ctx, req)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FetchFiles fetches req.Paths with bounded parallelism. Results follow
// request order. Per-path failures are reported in FileResult.Error; the
// returned error is reserved for invalid requests.
func (f *GitHubFetcher) FetchFiles(ctx context.Context, req FetchRequest) ([]FileResult, error) {
	if err := safety.CheckPathCount(len(req.Paths), f.cfg.MaxPaths); err != nil {
		return nil, err
	}
	ref := req.Ref
	if ref == "" {
		ref = f.cfg.DefaultRef
	}
	client := f.client(ctx, req.Token)

	results := make([]FileResult, len(req.Paths))
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, p := range req.Paths {
		g.Go(func() error {
			results[i] = f.fetchOne(ctx, client, req.Owner, req.Repo, ref, p)
			return nil
		})
	}
	_ = g.Wait()

	f.log.Debug("files fetched",
		zap.String("owner", req.Owner),
		zap.String("repo", req.Repo),
		zap.String("ref", ref),
		zap.Int("paths", len(req.Paths)),
	)
	return results, nil
}

func (f *GitHubFetcher) fetchOne(ctx context.Context, client *github.Client, owner, repo, ref, raw string) FileResult {
	res := FileResult{Path: raw}
	p, err := safety.NormalizeRepoPath(raw)
	if err != nil {
		metrics.ObserveFetch("rejected")
		res.Error = err.Error()
		return res
	}
	if err := f.limiter.Wait(ctx); err != nil {
		metrics.ObserveFetch("error")
		res.Error = err.Error()
		return res
	}

	fc, dir, _, err := client.Repositories.GetContents(ctx, owner, repo, p, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		metrics.ObserveFetch("error")
		res.Error = describeError(err)
		return res
	}
	if fc == nil || dir != nil {
		metrics.ObserveFetch("error")
		res.Error = "path is a directory"
		return res
	}
	content, err := fc.GetContent()
	if err != nil {
		metrics.ObserveFetch("error")
		res.Error = err.Error()
		return res
	}

	res.SourceURL = fc.GetHTMLURL()
	if !utf8.ValidString(content) {
		res.Encoding = "base64"
		res.Content = base64.StdEncoding.EncodeToString([]byte(content))
		res.Length = len(content)
		metrics.ObserveFetch("ok")
		return res
	}
	res.Length = utf8.RuneCountInString(content)
	if clamped, did := clampRunes(content, f.cfg.MaxFileChars); did {
		content = clamped + truncationSentinel
		res.Truncated = true
	}
	res.Content = content
	metrics.ObserveFetch("ok")
	return res
}

// Helper: clamp a string to at most n runes
func clampRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return "", len(s) > 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}
