package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"sentilab/config"
)

func TestNewRespectsLevel(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log, err := New(config.LogConfig{Level: "loud"})
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentilab.log")
	log, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("model trained")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "model trained")
}

func TestConsoleSink(t *testing.T) {
	out, err := consoleSink("")
	require.NoError(t, err)
	assert.Same(t, os.Stdout, out)

	out, err = consoleSink("stderr")
	require.NoError(t, err)
	assert.Same(t, os.Stderr, out)

	_, err = New(config.LogConfig{Output: "syslog"})
	assert.Error(t, err)
}
