// Package observability exposes the service-level prometheus collectors
// shared by the coaching binaries.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rehab_coach",
		Name:      "build_info",
		Help:      "Constant 1 labeled with the running build's version and commit.",
	}, []string{"version", "commit"})

	activeSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rehab_coach",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Number of coaching sessions currently in flight on this instance.",
	})

	outcomePersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rehab_coach",
		Subsystem: "persistence",
		Name:      "last_outcome_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session outcome written to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(buildInfoGauge, activeSessionsGauge, outcomePersistGauge)
}

// SetBuildInfo records the running build, typically once at startup.
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	buildInfoGauge.WithLabelValues(version, commit).Set(1)
}

// SessionStarted moves the active-session gauge up.
func SessionStarted() {
	activeSessionsGauge.Inc()
}

// SessionEnded moves the active-session gauge down.
func SessionEnded() {
	activeSessionsGauge.Dec()
}

// RecordOutcomePersisted updates the persistence watermark gauge.
func RecordOutcomePersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	outcomePersistGauge.Set(float64(ts.Unix()))
}
