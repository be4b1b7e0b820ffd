package logx

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogAdapterFormatsThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))

	adapter.Info("connected to %s on attempt %d", "alpha", 2)
	out := buf.String()
	assert.Contains(t, out, "connected to alpha on attempt 2")
	assert.Contains(t, out, "INFO")

	buf.Reset()
	adapter.Warn("server %s: worker exited", "alpha")
	assert.Contains(t, buf.String(), "WARN")
}

func TestSlogAdapterHonorsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))

	// The default text handler sits at info level.
	adapter.Debug("noisy detail %d", 1)
	assert.Empty(t, buf.String())
}

func TestSlogAdapterNilFallback(t *testing.T) {
	assert.NotNil(t, NewSlogAdapter(nil))
}

func TestDefaultLoggerLevels(t *testing.T) {
	logger := NewDefaultLogger()
	assert.NotPanics(t, func() {
		logger.Debug("debug %d", 1)
		logger.Info("info %d", 2)
		logger.Warn("warn %d", 3)
		logger.Error("error %d", 4)
	})
}
