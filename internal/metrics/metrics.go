package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the monitoring pipeline.
type Metrics struct {
	LinesTotal        *prometheus.CounterVec
	ParsedTotal       prometheus.Counter
	UnparsedTotal     prometheus.Counter
	EventsIngested    *prometheus.CounterVec
	SourceErrors      *prometheus.CounterVec
	AlertsFired       *prometheus.CounterVec
	AlertsSuppressed  prometheus.Counter
	PublishErrors     prometheus.Counter
	TrackedIPs        prometheus.Gauge
	TrackedUsers      prometheus.Gauge
	TickDuration      prometheus.Histogram
}

// New creates and registers the metrics set.
func New() *Metrics {
	m := &Metrics{
		LinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authwatch_lines_total",
			Help: "Log lines fetched per source",
		}, []string{"source"}),
		ParsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_parsed_lines_total",
			Help: "Lines parsed into auth events",
		}),
		UnparsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_unparsed_lines_total",
			Help: "Lines matching no pattern",
		}),
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authwatch_events_ingested_total",
			Help: "Events ingested by outcome",
		}, []string{"outcome"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authwatch_source_errors_total",
			Help: "Log source fetch failures by status",
		}, []string{"source", "status"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authwatch_alerts_fired_total",
			Help: "Alerts fired by rule",
		}, []string{"rule", "severity"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_alerts_suppressed_total",
			Help: "Alerts suppressed by the cooldown cache",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authwatch_publish_errors_total",
			Help: "NATS alert publish failures",
		}),
		TrackedIPs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authwatch_tracked_ips",
			Help: "IPs with failures inside the retention window",
		}),
		TrackedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authwatch_tracked_users",
			Help: "Users with activity inside the retention window",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authwatch_tick_duration_seconds",
			Help:    "Duration of one ingest+evaluate tick",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.LinesTotal,
		m.ParsedTotal,
		m.UnparsedTotal,
		m.EventsIngested,
		m.SourceErrors,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.PublishErrors,
		m.TrackedIPs,
		m.TrackedUsers,
		m.TickDuration,
	)

	return m
}
