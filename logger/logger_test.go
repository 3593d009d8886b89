package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, toZapLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, toZapLevel(" WARN "))
	assert.Equal(t, zapcore.ErrorLevel, toZapLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, toZapLevel("verbose"))
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(WarnLevel, &buf)

	log.Infof("tour %s created", "The Forest Hiker")
	log.Warnf("tour %s has no guides", "The Sea Explorer")
	_ = log.Sync()

	out := buf.String()
	assert.NotContains(t, out, "The Forest Hiker")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "The Sea Explorer")
}

func TestGetReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(InfoLevel), Get(DebugLevel))
}
