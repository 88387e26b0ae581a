package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresLevel(t *testing.T) {
	t.Cleanup(func() { globalLogger = zap.NewNop() })

	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestInitFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { globalLogger = zap.NewNop() })

	require.NoError(t, Init("not-a-level"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestWithModuleAttachesField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { globalLogger = zap.NewNop() })
	globalLogger = zap.New(core)

	WithModule("cache").Info("hello")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "cache", entries[0].ContextMap()["module"])
}
