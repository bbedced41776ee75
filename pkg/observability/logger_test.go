package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nmpoll/pkg/config"
)

func TestSetupLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Outputs: []string{path},
	})
	require.NoError(t, err)

	logger.Info("request issued", zap.Uint32("request_id", 7))
	require.NoError(t, logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "request issued")
	assert.Contains(t, string(b), "request_id")
}

func TestSetupLoggerDefaultsToStdout(t *testing.T) {
	logger, err := SetupLogger(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestLevelFor(t *testing.T) {
	for in, want := range map[string]string{
		"debug":   "debug",
		"Info":    "info",
		"warn":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"bogus":   "info",
	} {
		assert.Equal(t, want, levelFor(in).String(), "input %q", in)
	}
}
