// Package metrics exposes Prometheus instrumentation for scans and the rule
// store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyrothor_scans_completed_total",
			Help: "Total number of scan runs by outcome",
		},
		[]string{"status", "mode"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pyrothor_scan_duration_seconds",
			Help:    "End-to-end duration of scan runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	PackageDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyrothor_package_downloads_total",
			Help: "Scanner package acquisitions by source",
		},
		[]string{"source"},
	)

	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyrothor_store_operations_total",
			Help: "Rule store operations by type",
		},
		[]string{"operation"},
	)

	IndicatorsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pyrothor_indicators_purged_total",
			Help: "Threat intel indicators removed by retention",
		},
	)
)
