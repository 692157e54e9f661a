package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jooya/crawler/internal/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"debug", "info", "warn", "warning", "error", "", "bogus"} {
		log, err := logger.New(level)
		require.NoError(t, err, "level %q", level)
		require.NotNil(t, log)
	}
}

func TestWithReturnsIndependentLogger(t *testing.T) {
	t.Parallel()

	log, err := logger.New("info")
	require.NoError(t, err)

	child := log.With(logger.String("component", "test"))
	assert.NotNil(t, child)

	// Both parent and child stay usable.
	log.Info("parent entry")
	child.Info("child entry", logger.Int("n", 1), logger.Error(errors.New("boom")))
}

func TestNopLoggerIsSafe(t *testing.T) {
	t.Parallel()

	log := logger.Nop()
	log.Debug("ignored")
	log.Info("ignored", logger.Int64("id", 9))
	log.Warn("ignored")
	log.Error("ignored")
	assert.NoError(t, log.Sync())
	assert.NotNil(t, log.With(logger.String("k", "v")))
}
