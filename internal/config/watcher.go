package config

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher re-loads the configuration file when it changes on disk and
// hands the new snapshot to subscribers. A reload that fails validation
// is logged and discarded; only the initial Load is fail-fast.
type Watcher struct {
	path        string
	debounce    time.Duration
	logger      *slog.Logger
	mu          sync.RWMutex
	current     *Config
	subscribers []func(*Config)
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewWatcher creates a watcher seeded with the already-loaded config.
func NewWatcher(path string, initial *Config, debounce time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		debounce: debounce,
		logger:   logger,
		current:  initial,
		stop:     make(chan struct{}),
	}
}

// Current returns the latest valid configuration snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a callback invoked with each new valid snapshot.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Start begins polling the config file for modification time changes.
// Polling keeps the watcher dependency-free; the debounce collapses
// editor write bursts into a single reload.
func (w *Watcher) Start() {
	reload := make(chan struct{}, 1)
	go w.watchFile(reload)
	go w.debouncedReload(reload)
}

// Stop terminates the polling goroutines.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

func (w *Watcher) watchFile(reload chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(w.path); err == nil {
		lastMod = info.ModTime()
	}

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (w *Watcher) debouncedReload(reload chan struct{}) {
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-reload:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reloadOnce)
		}
	}
}

func (w *Watcher) reloadOnce() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous snapshot",
			"path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	subs := make([]func(*Config), len(w.subscribers))
	copy(subs, w.subscribers)
	w.mu.Unlock()

	w.logger.Info("config reloaded",
		"path", w.path,
		"failed_login_threshold", cfg.FailedLoginThreshold,
		"suspicious_ip_threshold", cfg.SuspiciousIPThreshold,
		"error_rate_threshold", cfg.ErrorRateThreshold)

	for _, fn := range subs {
		fn(cfg)
	}
}
