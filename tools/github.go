package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// FetcherConfig configures a GitHubFetcher. Zero values take defaults.
type FetcherConfig struct {
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise or tests.
	BaseURL string
	// Token is used when a request carries no credential of its own.
	Token      string
	DefaultRef string
	// MaxPaths caps the paths accepted per call.
	MaxPaths int
	// MaxFileChars caps each returned file, in characters.
	MaxFileChars   int
	MaxTreeEntries int
	Concurrency    int
	// RequestsPerSecond and Burst shape calls to the API.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

const (
	DefaultRef            = "main"
	DefaultMaxPaths       = 100
	DefaultMaxFileChars   = 100_000
	DefaultMaxTreeEntries = 2_000
	DefaultConcurrency    = 4
	DefaultRequestsPerSec = 10
)

// GitHubFetcher reads repository files and trees. Safe for concurrent use.
type GitHubFetcher struct {
	cfg     FetcherConfig
	baseURL *url.URL
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewGitHubFetcher(cfg FetcherConfig) (*GitHubFetcher, error) {
	if cfg.DefaultRef == "" {
		cfg.DefaultRef = DefaultRef
	}
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = DefaultMaxPaths
	}
	if cfg.MaxFileChars <= 0 {
		cfg.MaxFileChars = DefaultMaxFileChars
	}
	if cfg.MaxTreeEntries <= 0 {
		cfg.MaxTreeEntries = DefaultMaxTreeEntries
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Concurrency
	}
	f := &GitHubFetcher{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:     cfg.Logger,
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		f.baseURL = u
	}
	return f, nil
}

// client builds an API client authenticated with token, falling back to the
// configured token.
func (f *GitHubFetcher) client(ctx context.Context, token string) *github.Client {
	if token == "" {
		token = f.cfg.Token
	}
	hc := f.cfg.HTTPClient
	if token != "" {
		if hc != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	c := github.NewClient(hc)
	if f.baseURL != nil {
		c.BaseURL = f.baseURL
	}
	return c
}

// describeError renders API failures the way they are reported to the model.
func describeError(err error) string {
	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return "HTTPError 403: rate limit exceeded"
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		code := er.Response.StatusCode
		return fmt.Sprintf("HTTPError %d: %s", code, http.StatusText(code))
	}
	return err.Error()
}
