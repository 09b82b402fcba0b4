package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sgerhart/authwatch/internal/stats"
	"github.com/sgerhart/authwatch/internal/store"
)

// HTTPAPI exposes the engine's read-only views to presentation
// consumers. It only ever reads published snapshots.
type HTTPAPI struct {
	aggregator *stats.Aggregator
	alertLog   *store.AlertLog
	eventStore *store.EventStore
}

// NewHTTPAPI creates a new HTTP API instance.
func NewHTTPAPI(aggregator *stats.Aggregator, alertLog *store.AlertLog, eventStore *store.EventStore) *HTTPAPI {
	return &HTTPAPI{
		aggregator: aggregator,
		alertLog:   alertLog,
		eventStore: eventStore,
	}
}

// SetupRoutes configures HTTP routes.
func (api *HTTPAPI) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stats", api.handleStats)
	mux.HandleFunc("/alerts", api.handleAlerts)
	mux.HandleFunc("/events/recent", api.handleRecentEvents)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", api.handleHealth)
	mux.HandleFunc("/readyz", api.handleReady)
}

// handleStats handles GET /stats with the current summary snapshot.
func (api *HTTPAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, api.aggregator.Snapshot())
}

// handleAlerts handles GET /alerts with an optional limit parameter,
// newest alert first.
func (api *HTTPAPI) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	alerts := api.alertLog.Recent(limit)
	writeJSON(w, map[string]interface{}{
		"alerts":    alerts,
		"count":     len(alerts),
		"timestamp": time.Now().UTC(),
	})
}

// handleRecentEvents handles GET /events/recent with the bounded raw
// event buffer, oldest first.
func (api *HTTPAPI) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events := api.eventStore.RecentEvents()
	writeJSON(w, map[string]interface{}{
		"events":    events,
		"count":     len(events),
		"timestamp": time.Now().UTC(),
	})
}

// handleHealth handles GET /healthz.
func (api *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ips, users := api.eventStore.TrackedKeys()
	parsed, unparsed, _, _ := api.eventStore.Totals()
	writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"stats": map[string]interface{}{
			"tracked_ips":    ips,
			"tracked_users":  users,
			"total_parsed":   parsed,
			"total_unparsed": unparsed,
			"alert_history":  api.alertLog.Len(),
		},
	})
}

// handleReady handles GET /readyz; the service is ready once a summary
// has been published.
func (api *HTTPAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if api.aggregator.Snapshot().GeneratedAt.IsZero() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "starting"})
		return
	}
	writeJSON(w, map[string]interface{}{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
