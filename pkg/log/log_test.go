package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/goalgate/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, log.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, log.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("verbose"))
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := log.New(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "stage", "simulation")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "stage=simulation")
}
