package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", NewDefaultConfig(), false},
		{"zero value", Config{}, false},
		{"debug console", Config{Level: "debug", Format: "console"}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "info", Fields: map[string]string{"env": "test"}}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)

	log.Debug("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "nope"})
	assert.Error(t, err)
}

func TestIsStdoutSyncError(t *testing.T) {
	assert.True(t, isStdoutSyncError(syscall.EINVAL))
	assert.True(t, isStdoutSyncError(syscall.ENOTTY))
	assert.False(t, isStdoutSyncError(syscall.EACCES))
}
