package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesConsoleAndFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "serverup.log")
	var console bytes.Buffer

	err := initWithConsole(&Config{
		Level:      "info",
		FilePath:   logFile,
		MaxSize:    1,
		MaxBackups: 1,
	}, &console)
	require.NoError(t, err)
	t.Cleanup(func() { Logger = zap.NewNop() })

	Info("instance upgraded", zap.String("instance", "main"))
	Debug("hidden")
	require.NoError(t, Sync())

	assert.Contains(t, console.String(), "instance upgraded")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"instance":"main"`)
}

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(&Config{Level: "loud"})
	assert.Error(t, err)
}
