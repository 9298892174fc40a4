package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert := require.New(t)

	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: " WARN ", expected: slog.LevelWarn},
		{input: "warning", expected: slog.LevelWarn},
		{input: "error", expected: slog.LevelError},
		{input: "", expected: slog.LevelInfo},
		{input: "verbose", expected: slog.LevelInfo},
	}

	for _, testCase := range testCases {
		assert.Equal(testCase.expected, parseLevel(testCase.input), testCase.input)
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	log := New(Options{Level: "debug", Dir: dir})
	log.Info("hello", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	assert.NoError(err)
	assert.Contains(string(data), `"msg":"hello"`)
	assert.Contains(string(data), `"key":"value"`)
}
