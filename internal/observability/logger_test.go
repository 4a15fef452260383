package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{
		Level:     "debug",
		Output:    &buf,
		Component: "kcidb",
		Version:   "1.0.0",
	})
	require.NoError(t, err)

	logger.Info().Str("table", "builds").Int("rows", 3).Msg("Loaded records")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Loaded records", entry["message"])
	assert.Equal(t, "builds", entry["table"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Equal(t, "kcidb", entry["component"])
	assert.Equal(t, "1.0.0", entry["version"])
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	console := true
	logger, err := NewLogger(LoggerConfig{Output: &buf, Console: &console})
	require.NoError(t, err)

	logger.Info().Str("dataset", "kernelci").Msg("Dataset initialized")
	out := buf.String()
	assert.Contains(t, out, "Dataset initialized")
	assert.Contains(t, out, "dataset=")
	assert.False(t, strings.HasPrefix(out, "{"))
}

func TestLoggerFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "kcidb.log")
	logger, err := NewLogger(LoggerConfig{Output: &buf, File: path})
	require.NoError(t, err)

	logger.Error().Msg("load failed")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"load failed"`)
	assert.Contains(t, buf.String(), "load failed")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
		error bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := LevelFromString(tt.input)
			if tt.error {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
