// Package metrics exposes the service's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesIngested counts price samples folded into candle streams.
	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_samples_ingested_total",
		Help: "Price samples ingested per pool",
	}, []string{"pool"})

	// StaleSamplesRejected counts out-of-order samples dropped at ingestion.
	StaleSamplesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_stale_samples_rejected_total",
		Help: "Out-of-order price samples rejected per pool",
	}, []string{"pool"})

	// VolumeEvents counts swap volume events recorded.
	VolumeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_volume_events_total",
		Help: "Swap volume events recorded per pool",
	}, []string{"pool"})

	// ContinuityRepairs counts candle opens fixed by the continuity pass.
	ContinuityRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricefeed_continuity_repairs_total",
		Help: "Candle continuity violations repaired",
	})

	// SnapshotFailures counts failed snapshot save attempts.
	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricefeed_snapshot_failures_total",
		Help: "Snapshot save failures",
	})

	// UpstreamErrors counts failed producer fetches.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricefeed_upstream_errors_total",
		Help: "Producer fetch failures per pool",
	}, []string{"pool"})
)
