package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		require.NoError(t, Initialize(level), level)
		require.NotNil(t, Log)
	}

	// unknown levels fall back to info rather than failing
	require.NoError(t, Initialize("chatty"))
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
}

func TestPackageHelpersSurviveNilLogger(t *testing.T) {
	saved := Log
	defer func() { Log = saved }()
	Log = nil

	assert.NotPanics(t, func() {
		Debug("d")
		Info("i", zap.String("k", "v"))
		Warn("w")
		Error("e")
	})
	assert.Nil(t, With(zap.String("k", "v")))
	assert.NoError(t, Sync())
}
