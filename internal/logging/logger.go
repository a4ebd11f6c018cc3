// Package logging builds the zap logger shared by every component.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ServiceName = "buildfile-agent"

// Config holds logging configuration.
type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	// Fields are attached to every entry.
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns info-level JSON logging.
func NewDefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// Validate checks the level and format.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.level()); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (expected json or console)", c.Format)
	}
	return nil
}

func (c Config) level() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// New creates a logger writing to stderr. Stdout stays free for command output.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	lvl, _ := zapcore.ParseLevel(cfg.level())

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(w), lvl)
	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	fields := []zap.Field{zap.String("service", ServiceName)}
	for k, v := range cfg.Fields {
		fields = append(fields, zap.String(k, v))
	}
	return logger.With(fields...), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Sync flushes l, ignoring the harmless errors syncing a terminal returns.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

// isStdoutSyncError checks if error is harmless stdout/stderr sync error.
// On Linux, syncing stdout/stderr returns EINVAL or ENOTTY which are safe to ignore.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
