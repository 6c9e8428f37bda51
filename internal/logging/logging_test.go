package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"INFO":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	_, err := ParseLevel("trace")
	require.Error(t, err)
}

func TestNewBuildsLogger(t *testing.T) {
	for _, format := range []string{"", "json", "console"} {
		logger, err := New(Config{Level: "debug", Format: format, Output: "stderr"})
		require.NoError(t, err, format)
		require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	require.Error(t, err)
	_, err = New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithRunTagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithRun(zap.New(core), "run-1").Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "run-1", entries[0].ContextMap()["run_id"])

	require.NotNil(t, WithRun(nil, "x"))
}
