package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/pkg/log"
)

func TestLoggerLevels(t *testing.T) {
	ctx := context.Background()

	def := log.New("taxflow", "test", "0.0.1").Handler()
	assert.False(t, def.Enabled(ctx, slog.LevelDebug))
	assert.True(t, def.Enabled(ctx, slog.LevelInfo))

	quiet := log.NewWithLevel("taxflow", "test", "0.0.1", slog.LevelError)
	assert.False(t, quiet.Handler().Enabled(ctx, slog.LevelWarn))
	assert.True(t, quiet.Handler().Enabled(ctx, slog.LevelError))
}

func TestLoggerServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(
		&buf, "taxflow", "staging", "0.4.2", slog.LevelDebug,
	)
	logger.Debug("Step completed", log.StepName("valuation"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Step completed", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "taxflow", line["service"])
	assert.Equal(t, "staging", line["env"])
	assert.Equal(t, "0.4.2", line["version"])
	assert.Equal(t, "valuation", line["step"])
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	} {
		assert.Equal(t, want, log.ParseLevel(name), name)
	}
}
