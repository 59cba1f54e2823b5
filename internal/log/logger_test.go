package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	defer Set(nil)

	assert.NoError(t, Init("debug", true))
	assert.True(t, Logger().Core().Enabled(zap.DebugLevel))

	assert.NoError(t, Init("warn", false))
	assert.False(t, Logger().Core().Enabled(zap.InfoLevel))

	assert.Error(t, Init("loud", false))
}

func TestSet(t *testing.T) {
	defer Set(nil)

	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	Logger().Info("hello", zap.String("k", "v"))

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].Message)

	Set(nil)
	assert.NotNil(t, Logger())
}
