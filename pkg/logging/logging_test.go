package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"Trace", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{" WARN ", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"critical", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "debug, info, warn, error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWritesJSONWithUTCTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "azauth.log")
	logger, err := New(Options{Verbosity: "warn", JSON: true, OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("visible", zap.String("flow", "web"))
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "web", entry["flow"])
	ts, ok := entry["ts"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(ts, "Z"), "timestamp %q is not UTC", ts)
	assert.NotContains(t, entry, "stacktrace")
}

func TestNewDebugEnablesDebugLevel(t *testing.T) {
	logger, err := New(Options{Verbosity: "debug", OutputPaths: []string{filepath.Join(t.TempDir(), "log")}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownVerbosity(t *testing.T) {
	_, err := New(Options{Verbosity: "chatty"})
	require.Error(t, err)
}

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger()
	require.NotNil(t, log)
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Verbosity: "info", Writer: &buf})
	require.NoError(t, err)
	logger.Sugar().Debug("hidden")
	logger.Sugar().Infow("Waiting for web authentication", "flow", "web")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Waiting for web authentication")
	assert.Contains(t, out, `"flow": "web"`)
}
