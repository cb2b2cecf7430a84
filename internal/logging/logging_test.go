package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEV":     slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"prod":    slog.LevelError,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in, slog.LevelInfo), in)
	}
	assert.Equal(t, slog.LevelWarn, ParseLevel("", slog.LevelWarn))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud", slog.LevelInfo))
}

func TestInitHonoursEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger := Init(slog.LevelError)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	t.Setenv("LOG_LEVEL", "")
	logger = Init(slog.LevelError)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelWarn))
}
