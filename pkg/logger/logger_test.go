package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNew_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("connecting", "api_key", "sk-live-123", "index", "hikma-fatwas")

	line := decodeLine(t, &buf)
	assert.Equal(t, "***REDACTED***", line["api_key"])
	assert.Equal(t, "hikma-fatwas", line["index"])
}

func TestWithContext_AddsRunAndCorpus(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Output: &buf})

	ctx := WithCorpus(WithRunID(context.Background(), "run-1"), "sahih-bukhari")
	log.WithContext(ctx).WithComponent("pipeline").Debug("batch done")

	line := decodeLine(t, &buf)
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "sahih-bukhari", line["corpus"])
	assert.Equal(t, "pipeline", line["component"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})

	log.WithError(errors.New("boom")).Warn("failed")
	line := decodeLine(t, &buf)
	assert.Equal(t, "boom", line["error"])

	assert.Same(t, log, log.WithError(nil))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "text", Output: &buf})

	log.WithFields(map[string]any{"unit": "2", "corpus": "quran"}).Info("stored")
	assert.Contains(t, buf.String(), "corpus=quran unit=2")
}

func TestWithContext_Empty(t *testing.T) {
	log := Discard()
	assert.Same(t, log, log.WithContext(context.Background()))
}
