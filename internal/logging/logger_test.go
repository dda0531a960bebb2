package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/auditflow/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(slog.LevelInfo, "json", &buf)

	logger.Debug("hidden")
	logger.Error("run failed", "error", errors.New("boom"), "thread_id", "t1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run failed", rec["msg"])
	assert.Equal(t, "boom", rec["err"])
	assert.NotContains(t, rec, "error")
	assert.Equal(t, "t1", rec["thread_id"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(slog.LevelDebug, "text", &buf)

	logger.Debug("node complete", "error", "none")

	assert.Contains(t, buf.String(), "msg=\"node complete\"")
	assert.Contains(t, buf.String(), "err=none")
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() {
		logging.NewNop().Error("dropped")
	})
}
