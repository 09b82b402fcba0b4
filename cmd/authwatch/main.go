package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/authwatch/internal/api"
	"github.com/sgerhart/authwatch/internal/config"
	"github.com/sgerhart/authwatch/internal/logsource"
	"github.com/sgerhart/authwatch/internal/metrics"
	"github.com/sgerhart/authwatch/internal/parser"
	"github.com/sgerhart/authwatch/internal/rules"
	"github.com/sgerhart/authwatch/internal/stats"
	"github.com/sgerhart/authwatch/internal/store"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "/etc/authwatch/config.yaml", "config path")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting authwatch")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("config load failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"sources", len(cfg.Sources),
		"failed_login_threshold", cfg.FailedLoginThreshold,
		"failed_login_window_sec", cfg.FailedLoginWindowSec,
		"suspicious_ip_threshold", cfg.SuspiciousIPThreshold,
		"error_rate_threshold", cfg.ErrorRateThreshold,
		"error_rate_window_sec", cfg.ErrorRateWindowSec,
		"http_addr", cfg.HTTPAddr,
		"hot_reload", cfg.HotReload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	eventStore := store.New(cfg.EventHistory)
	alertLog := store.NewAlertLog(cfg.AlertHistory, cfg.AlertHistory*4)
	lineParser := parser.New()
	tailer := logsource.NewTailer(cfg.Sources, cfg.CacheInterval(), cfg.TailLines, logger)
	engine := rules.NewEngine(cfg, eventStore, alertLog, m, logger)
	aggregator := stats.New(eventStore, cfg.RetentionWindow())

	// Optional outbound alert publishing. The engine itself never
	// touches the network.
	var publisher *rules.AlertPublisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = rules.NewAlertPublisher(nc, logger)
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	if cfg.HotReload {
		watcher := config.NewWatcher(cfgPath, cfg, time.Duration(cfg.DebounceMs)*time.Millisecond, logger)
		watcher.Subscribe(func(next *config.Config) {
			// Threshold and window changes apply live; source and
			// listener changes need a restart.
			engine.Reconfigure(next)
			aggregator.SetRetention(next.RetentionWindow())
		})
		watcher.Start()
		defer watcher.Stop()
	}

	httpAPI := api.NewHTTPAPI(aggregator, alertLog, eventStore)
	mux := http.NewServeMux()
	httpAPI.SetupRoutes(mux)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sourceIDs := make([]string, 0, len(cfg.Sources))
	for id := range cfg.Sources {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	// Single-writer tick loop: one goroutine ingests and evaluates, so a
	// slow tick defers the next trigger instead of overlapping it.
	go func() {
		ticker := time.NewTicker(cfg.RefreshInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(sourceIDs, tailer, lineParser, eventStore, engine, aggregator, publisher, m, logger)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("authwatch started")
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("authwatch stopped")
}

// tick runs one ingest and evaluation pass to completion.
func tick(
	sourceIDs []string,
	tailer *logsource.Tailer,
	lineParser *parser.Parser,
	eventStore *store.EventStore,
	engine *rules.Engine,
	aggregator *stats.Aggregator,
	publisher *rules.AlertPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) {
	start := time.Now()

	for _, id := range sourceIDs {
		res := tailer.Fetch(id)
		if res.Status != logsource.StatusOK {
			m.SourceErrors.WithLabelValues(id, string(res.Status)).Inc()
			continue
		}
		m.LinesTotal.WithLabelValues(id).Add(float64(len(res.Lines)))

		unparsed := 0
		for _, line := range res.Lines {
			ev, err := lineParser.Parse(line)
			if err != nil {
				unparsed++
				m.UnparsedTotal.Inc()
				continue
			}
			eventStore.Ingest(ev)
			m.ParsedTotal.Inc()
			m.EventsIngested.WithLabelValues(string(ev.Outcome)).Inc()
		}
		eventStore.CountUnparsed(unparsed)
	}

	now := time.Now()
	alerts := engine.Evaluate(now)
	aggregator.Refresh(now, alerts)

	if publisher != nil && len(alerts) > 0 {
		if err := publisher.PublishAlerts(alerts); err != nil {
			m.PublishErrors.Inc()
			logger.Warn("alert publish failed", "error", err)
		}
	}

	ips, users := eventStore.TrackedKeys()
	m.TrackedIPs.Set(float64(ips))
	m.TrackedUsers.Set(float64(users))
	m.TickDuration.Observe(time.Since(start).Seconds())
}
