package logger

import (
	"testing"

	"github.com/bgbye/bgbye/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithFields(t *testing.T) {
	// Setup
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core))

	// Test
	log.WithFields(Fields{"session_id": "s1", "method": "u2net"}).Infof("settled in %dms", 12)
	log.Debugf("dropped")

	// Verify
	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "settled in 12ms", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "s1", ctx["session_id"])
	assert.Equal(t, "u2net", ctx["method"])
}

func TestBuild(t *testing.T) {
	_, err := build("debug", "console")
	assert.NoError(t, err)

	_, err = build("loud", "json")
	assert.Error(t, err)

	_, err = build("info", "xml")
	assert.Error(t, err)
}

func TestNewLogger_FallsBack(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "nope", Format: "json"}}
	assert.NotNil(t, NewLogger(cfg))
	assert.NotNil(t, NewLogger(nil))
}
