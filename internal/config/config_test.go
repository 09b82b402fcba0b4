package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
sources:
  auth: /var/log/auth.log
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.FailedLoginThreshold)
	assert.Equal(t, 300, cfg.FailedLoginWindowSec)
	assert.Equal(t, 10, cfg.SuspiciousIPThreshold)
	assert.Equal(t, 10, cfg.ErrorRateThreshold)
	assert.Equal(t, 60, cfg.ErrorRateWindowSec)
	assert.Equal(t, 5, cfg.CacheIntervalSec)
	assert.Equal(t, 100, cfg.TailLines)
	assert.Equal(t, 3, cfg.MaxAlerts)
	assert.Equal(t, 0, cfg.AlertCooldownSec)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1000, cfg.EventHistory)

	assert.Equal(t, 5*time.Minute, cfg.FailedLoginWindow())
	assert.Equal(t, time.Minute, cfg.ErrorRateWindow())
	assert.Equal(t, 5*time.Minute, cfg.RetentionWindow())
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sources:
  auth: /var/log/auth.log
  secure: /var/log/secure
failed_login_threshold: 30
failed_login_window: 600
suspicious_ip_threshold: 15
error_rate_threshold: 25
error_rate_window: 120
alert_cooldown_seconds: 90
nats_url: nats://localhost:4222
hot_reload: true
`))
	require.NoError(t, err)

	assert.Len(t, cfg.Sources, 2)
	assert.Equal(t, "/var/log/secure", cfg.Sources["secure"])
	assert.Equal(t, 30, cfg.FailedLoginThreshold)
	assert.Equal(t, 10*time.Minute, cfg.FailedLoginWindow())
	assert.Equal(t, 90*time.Second, cfg.AlertCooldown())
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.True(t, cfg.HotReload)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "sources: [not: valid"))
	assert.Error(t, err)
}

// Config validation fails fast and names the offending field: silently
// accepting nonsensical thresholds defeats the alerting purpose.
func TestValidate_RejectsNonsense(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"no sources", "failed_login_threshold: 20\n", "sources"},
		{"empty source path", "sources:\n  auth: \"\"\n", "sources.auth"},
		{"negative threshold", minimalConfig + "failed_login_threshold: -5\n", "failed_login_threshold"},
		{"negative window", minimalConfig + "failed_login_window: -1\n", "failed_login_window"},
		{"suspicious above brute", minimalConfig + "suspicious_ip_threshold: 50\n", "suspicious_ip_threshold"},
		{"negative error threshold", minimalConfig + "error_rate_threshold: -2\n", "error_rate_threshold"},
		{"negative cooldown", minimalConfig + "alert_cooldown_seconds: -10\n", "alert_cooldown_seconds"},
		{"negative tail lines", minimalConfig + "tail_lines: -1\n", "tail_lines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHWATCH_FAILED_LOGIN_THRESHOLD", "40")
	t.Setenv("AUTHWATCH_HTTP_ADDR", ":9999")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.FailedLoginThreshold)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestWatcher_ReloadAppliesNewThresholds(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, cfg, time.Millisecond, testLogger())

	applied := make(chan *Config, 1)
	w.Subscribe(func(next *Config) {
		applied <- next
	})

	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"failed_login_threshold: 25\n"), 0o644))
	w.reloadOnce()

	select {
	case next := <-applied:
		assert.Equal(t, 25, next.FailedLoginThreshold)
		assert.Equal(t, 25, w.Current().FailedLoginThreshold)
	default:
		t.Fatal("subscriber was not notified")
	}
}

// A reload that fails validation keeps the previous snapshot.
func TestWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, cfg, time.Millisecond, testLogger())

	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"failed_login_threshold: -1\n"), 0o644))
	w.reloadOnce()

	assert.Equal(t, 20, w.Current().FailedLoginThreshold)
}
