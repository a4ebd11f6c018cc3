// Package config loads service configuration from a YAML file and AGT_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/petasbytes/buildfile-agent/internal/host"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/store"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix marks environment overrides.
	EnvPrefix = "AGT_"

	// DefaultHistoryTurns applies when orchestrator.history_turns is unset or 0.
	DefaultHistoryTurns = 10

	// HistoryDisabled as orchestrator.history_turns switches conversation
	// history off.
	HistoryDisabled = -1
)

// Load reads configuration from the YAML file at path, then overrides it with
// environment variables. An empty path skips the file.
//
// Environment variables carry the AGT_ prefix and split section from field at
// the first underscore:
//
//	AGT_MODEL_ID           -> model.id
//	AGT_GITHUB_MAX_PATHS   -> github.max_paths
//	AGT_HOST_STEP_TIMEOUT  -> host.step_timeout
//
// GITHUB_TOKEN is used when github.token is not configured.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps AGT_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Model.ID == "" {
		cfg.Model.ID = orchestrator.DefaultModelID
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = orchestrator.DefaultMaxTokens
	}

	if cfg.Orchestrator.ToolName == "" {
		cfg.Orchestrator.ToolName = orchestrator.DefaultToolName
	}
	if cfg.Orchestrator.MaxToolChars == 0 {
		cfg.Orchestrator.MaxToolChars = orchestrator.DefaultMaxToolChars
	}
	if cfg.Orchestrator.HistoryTurns == 0 {
		cfg.Orchestrator.HistoryTurns = DefaultHistoryTurns
	}

	if !cfg.GitHub.Token.IsSet() {
		cfg.GitHub.Token = Secret(os.Getenv("GITHUB_TOKEN"))
	}
	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = 30 * time.Second
	}

	if cfg.Host.MaxSteps == 0 {
		cfg.Host.MaxSteps = host.DefaultMaxSteps
	}
	if cfg.Host.StepTimeout == 0 {
		cfg.Host.StepTimeout = 2 * time.Minute
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = store.BackendMemory
	}
	if cfg.Store.Backend == store.BackendFile && cfg.Store.Dir == "" {
		cfg.Store.Dir = ".agent/sessions"
	}
	if cfg.Store.Backend == store.BackendNATS {
		if cfg.Store.NATSURL == "" {
			cfg.Store.NATSURL = "nats://127.0.0.1:4222"
		}
		if cfg.Store.Bucket == "" {
			cfg.Store.Bucket = "buildfile_sessions"
		}
		if cfg.Store.TTL == 0 {
			cfg.Store.TTL = 24 * time.Hour
		}
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Model.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens must be positive"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0, 1]"))
	}
	if c.Orchestrator.MaxToolChars < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_tool_chars must be positive"))
	}
	if c.Orchestrator.HistoryTurns < HistoryDisabled {
		errs = append(errs, fmt.Errorf("orchestrator.history_turns must not be below %d", HistoryDisabled))
	}
	if c.GitHub.MaxPaths < 0 || c.GitHub.Concurrency < 0 || c.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("github limits must not be negative"))
	}
	if c.Host.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("host.max_steps must be at least 1"))
	}
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendFile, store.BackendNATS:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, file, nats", c.Store.Backend))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}
