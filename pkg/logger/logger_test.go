package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupGlobalToLevels(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupGlobalTo(&buf, false, false)
	slog.Debug("hidden")
	slog.Info("shown", "endpoint", "vkr")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "endpoint=vkr")

	buf.Reset()
	SetupGlobalTo(&buf, true, false)
	slog.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
