package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the monitoring engine configuration. Window and interval
// values are plain seconds in the file, matching the external contract.
type Config struct {
	Sources map[string]string `yaml:"sources"`

	FailedLoginThreshold  int `yaml:"failed_login_threshold"`
	FailedLoginWindowSec  int `yaml:"failed_login_window"`
	SuspiciousIPThreshold int `yaml:"suspicious_ip_threshold"`
	ErrorRateThreshold    int `yaml:"error_rate_threshold"`
	ErrorRateWindowSec    int `yaml:"error_rate_window"`

	CacheIntervalSec    int `yaml:"cache_interval"`
	TailLines           int `yaml:"tail_lines"`
	MaxAlerts           int `yaml:"max_alerts"`
	AlertCooldownSec    int `yaml:"alert_cooldown_seconds"`
	RefreshIntervalSec  int `yaml:"refresh_interval"`
	EventHistory        int `yaml:"event_history"`
	AlertHistory        int `yaml:"alert_history"`

	HTTPAddr   string `yaml:"http_addr"`
	NATSURL    string `yaml:"nats_url"`
	HotReload  bool   `yaml:"hot_reload"`
	DebounceMs int    `yaml:"debounce_ms"`
}

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Load reads, defaults, and validates a configuration file. Validation
// failures are fatal to the caller: silently accepting nonsensical
// thresholds would defeat the alerting purpose.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.FailedLoginThreshold == 0 {
		c.FailedLoginThreshold = 20
	}
	if c.FailedLoginWindowSec == 0 {
		c.FailedLoginWindowSec = 300
	}
	if c.SuspiciousIPThreshold == 0 {
		c.SuspiciousIPThreshold = 10
	}
	if c.ErrorRateThreshold == 0 {
		c.ErrorRateThreshold = 10
	}
	if c.ErrorRateWindowSec == 0 {
		c.ErrorRateWindowSec = 60
	}
	if c.CacheIntervalSec == 0 {
		c.CacheIntervalSec = 5
	}
	if c.TailLines == 0 {
		c.TailLines = 100
	}
	if c.MaxAlerts == 0 {
		c.MaxAlerts = 3
	}
	if c.RefreshIntervalSec == 0 {
		c.RefreshIntervalSec = 2
	}
	if c.EventHistory == 0 {
		c.EventHistory = 1000
	}
	if c.AlertHistory == 0 {
		c.AlertHistory = 256
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = 1000
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTHWATCH_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("AUTHWATCH_NATS_URL"); v != "" {
		c.NATSURL = v
	}
	c.FailedLoginThreshold = envInt("AUTHWATCH_FAILED_LOGIN_THRESHOLD", c.FailedLoginThreshold)
	c.FailedLoginWindowSec = envInt("AUTHWATCH_FAILED_LOGIN_WINDOW", c.FailedLoginWindowSec)
	c.SuspiciousIPThreshold = envInt("AUTHWATCH_SUSPICIOUS_IP_THRESHOLD", c.SuspiciousIPThreshold)
	c.ErrorRateThreshold = envInt("AUTHWATCH_ERROR_RATE_THRESHOLD", c.ErrorRateThreshold)
	c.ErrorRateWindowSec = envInt("AUTHWATCH_ERROR_RATE_WINDOW", c.ErrorRateWindowSec)
	c.AlertCooldownSec = envInt("AUTHWATCH_ALERT_COOLDOWN_SECONDS", c.AlertCooldownSec)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Validate checks the configuration for values that would make the
// alerting engine meaningless.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return &ValidationError{Field: "sources", Message: "at least one log source is required"}
	}
	for id, path := range c.Sources {
		if path == "" {
			return &ValidationError{Field: "sources." + id, Message: "path must not be empty"}
		}
	}
	if c.FailedLoginThreshold < 1 {
		return &ValidationError{Field: "failed_login_threshold", Message: "must be at least 1"}
	}
	if c.FailedLoginWindowSec < 1 {
		return &ValidationError{Field: "failed_login_window", Message: "must be at least 1 second"}
	}
	if c.SuspiciousIPThreshold < 1 {
		return &ValidationError{Field: "suspicious_ip_threshold", Message: "must be at least 1"}
	}
	if c.SuspiciousIPThreshold >= c.FailedLoginThreshold {
		return &ValidationError{Field: "suspicious_ip_threshold", Message: "must be below failed_login_threshold"}
	}
	if c.ErrorRateThreshold < 1 {
		return &ValidationError{Field: "error_rate_threshold", Message: "must be at least 1"}
	}
	if c.ErrorRateWindowSec < 1 {
		return &ValidationError{Field: "error_rate_window", Message: "must be at least 1 second"}
	}
	if c.CacheIntervalSec < 0 {
		return &ValidationError{Field: "cache_interval", Message: "must not be negative"}
	}
	if c.TailLines < 1 {
		return &ValidationError{Field: "tail_lines", Message: "must be at least 1"}
	}
	if c.MaxAlerts < 1 {
		return &ValidationError{Field: "max_alerts", Message: "must be at least 1"}
	}
	if c.AlertCooldownSec < 0 {
		return &ValidationError{Field: "alert_cooldown_seconds", Message: "must not be negative"}
	}
	if c.RefreshIntervalSec < 1 {
		return &ValidationError{Field: "refresh_interval", Message: "must be at least 1 second"}
	}
	if c.EventHistory < 1 {
		return &ValidationError{Field: "event_history", Message: "must be at least 1"}
	}
	if c.AlertHistory < 1 {
		return &ValidationError{Field: "alert_history", Message: "must be at least 1"}
	}
	return nil
}

// FailedLoginWindow returns the brute-force window as a duration.
func (c *Config) FailedLoginWindow() time.Duration {
	return time.Duration(c.FailedLoginWindowSec) * time.Second
}

// ErrorRateWindow returns the global error-rate window as a duration.
func (c *Config) ErrorRateWindow() time.Duration {
	return time.Duration(c.ErrorRateWindowSec) * time.Second
}

// CacheInterval returns the log source cache interval as a duration.
func (c *Config) CacheInterval() time.Duration {
	return time.Duration(c.CacheIntervalSec) * time.Second
}

// AlertCooldown returns the per-rule alert cooldown as a duration.
// Zero means alerts re-fire on every tick while the condition holds.
func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.AlertCooldownSec) * time.Second
}

// RefreshInterval returns the tick interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

// RetentionWindow is the widest window any rule evaluates; the event
// store prunes against it so every rule sees enough history.
func (c *Config) RetentionWindow() time.Duration {
	w := c.FailedLoginWindow()
	if e := c.ErrorRateWindow(); e > w {
		w = e
	}
	return w
}
