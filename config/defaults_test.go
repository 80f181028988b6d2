package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, 60*time.Second, cfg.Server.ToolTimeout)
	assert.Equal(t, 16, cfg.Server.MaxInFlight)

	// 只读闸门默认开启
	assert.True(t, cfg.NiFi.ReadOnly)
	assert.True(t, cfg.NiFi.VerifySSL)
	assert.Equal(t, 3, cfg.NiFi.Retry.MaxAttempts)
	assert.Empty(t, cfg.NiFi.BaseURL)

	assert.Equal(t, 200, cfg.Sanitize.MaxItems)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Log.OutputPaths)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "nifimcp", cfg.Telemetry.ServiceName)

	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, AuditSinkDatabase, cfg.Audit.Sink)
	assert.Equal(t, 256, cfg.Audit.QueueSize)
}

func TestDefaultConfig_IndependentCopies(t *testing.T) {
	a := DefaultConfig()
	a.Log.OutputPaths[0] = "stdout"
	b := DefaultConfig()
	assert.Equal(t, "stderr", b.Log.OutputPaths[0])
}
