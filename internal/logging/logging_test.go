package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-manager/internal/config"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "trade-manager.log")

	logger, closer, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	Component(logger, "engine").WithField("event", "order_submitted").Info("ok")
	Component(logger, "engine").Debug("hidden")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "event=order_submitted")
	assert.Contains(t, console.String(), "component=engine")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "event=order_submitted")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
}
