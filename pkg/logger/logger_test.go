package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultahub/consulta-server/pkg/config"
)

func TestNewWithSentryFanout(t *testing.T) {
	cfg := config.Config{
		Logger: config.LoggerConfig{Level: "error", Format: "json"},
		Sentry: config.SentryConfig{Enabled: true},
	}

	log := New(cfg)
	require.NotNil(t, log)

	// The sentry handler must accept records even when no hub is
	// initialized; delivery is a no-op in that case.
	assert.NotPanics(t, func() {
		log.Error("lookup failed", "error", "provider timeout")
	})
}

func TestMaskingHandlerHidesSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.Info("lookup authorized", "user_id", "u-1", "cpf", "52998224725", "password", "hunter2")

	out := buf.String()
	assert.Contains(t, out, `"user_id":"u-1"`)
	assert.Contains(t, out, `"cpf":"***"`)
	assert.Contains(t, out, `"password":"***"`)
	assert.NotContains(t, out, "52998224725")
	assert.NotContains(t, out, "hunter2")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("unknown"))
}
