package config

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/host"
	"github.com/petasbytes/buildfile-agent/internal/logging"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/server"
	"github.com/petasbytes/buildfile-agent/internal/store"
	"github.com/petasbytes/buildfile-agent/tools"
)

// Config is the full service configuration.
type Config struct {
	Model        ModelConfig        `koanf:"model"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	GitHub       GitHubConfig       `koanf:"github"`
	Host         host.Config        `koanf:"host"`
	Store        store.Config       `koanf:"store"`
	Server       server.Config      `koanf:"server"`
	Logging      logging.Config     `koanf:"logging"`
}

type ModelConfig struct {
	ID          string  `koanf:"id"`
	MaxTokens   int64   `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	// BaseURL overrides the Anthropic API endpoint.
	BaseURL string `koanf:"base_url"`
	// APIKey overrides ANTHROPIC_API_KEY when set.
	APIKey Secret `koanf:"api_key"`
}

type OrchestratorConfig struct {
	ToolName     string `koanf:"tool_name"`
	MaxToolChars int    `koanf:"max_tool_chars"`
	// HistoryTurns caps the retained conversation history. 0 means the
	// default; HistoryDisabled (-1) keeps no history.
	HistoryTurns  int `koanf:"history_turns"`
	HistoryBudget int `koanf:"history_budget"`
}

type GitHubConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Token             Secret        `koanf:"token"`
	DefaultRef        string        `koanf:"default_ref"`
	MaxPaths          int           `koanf:"max_paths"`
	MaxFileChars      int           `koanf:"max_file_chars"`
	MaxTreeEntries    int           `koanf:"max_tree_entries"`
	Concurrency       int           `koanf:"concurrency"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	Timeout           time.Duration `koanf:"timeout"`
}

// OrchestratorOptions maps the model and orchestrator sections onto orchestrator options.
func (c *Config) OrchestratorOptions(log *zap.Logger) orchestrator.Options {
	turns := c.Orchestrator.HistoryTurns
	if turns < 0 {
		turns = 0
	}
	return orchestrator.Options{
		ModelID:       c.Model.ID,
		ToolName:      c.Orchestrator.ToolName,
		MaxTokens:     c.Model.MaxTokens,
		Temperature:   c.Model.Temperature,
		MaxToolChars:  c.Orchestrator.MaxToolChars,
		HistoryTurns:  turns,
		HistoryBudget: c.Orchestrator.HistoryBudget,
		Logger:        log,
	}
}

// FetcherConfig maps the github section onto the file fetcher.
func (c *Config) FetcherConfig(log *zap.Logger) tools.FetcherConfig {
	return tools.FetcherConfig{
		BaseURL:           c.GitHub.BaseURL,
		Token:             c.GitHub.Token.Value(),
		DefaultRef:        c.GitHub.DefaultRef,
		MaxPaths:          c.GitHub.MaxPaths,
		MaxFileChars:      c.GitHub.MaxFileChars,
		MaxTreeEntries:    c.GitHub.MaxTreeEntries,
		Concurrency:       c.GitHub.Concurrency,
		RequestsPerSecond: c.GitHub.RequestsPerSecond,
		Burst:             c.GitHub.Burst,
		HTTPClient:        &http.Client{Timeout: c.GitHub.Timeout},
		Logger:            log,
	}
}

// Secret is a string that never prints its value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}
