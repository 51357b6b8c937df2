package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sentilab/config"
)

func TestCLILogsToStderr(t *testing.T) {
	base := config.Default().Log

	got := cliLogConfig(base, "")
	assert.Equal(t, "stderr", got.Output)
	assert.Equal(t, "console", got.Format)
	assert.Equal(t, base.Level, got.Level)

	got = cliLogConfig(base, "debug")
	assert.Equal(t, "debug", got.Level)
	assert.Equal(t, "stdout", base.Output)
}
