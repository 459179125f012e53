package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric emitted by LiquidCore, mirroring
// the teacher's single-struct-threaded-through-components convention.
type Metrics struct {
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventApplyDur  *prometheus.HistogramVec

	StateDriftTotal *prometheus.CounterVec
	ReorgsHandled   prometheus.Counter

	ScanRequests      prometheus.Counter
	ScanDuration      prometheus.Histogram
	ScanCandidates    prometheus.Histogram
	ScanBorrowersSeen prometheus.Histogram

	AttestationsStale prometheus.Counter

	ChainReadErrors    *prometheus.CounterVec
	ChainReadRetries   *prometheus.CounterVec
	ChainReadDuration  *prometheus.HistogramVec
	EventSourceReconns prometheus.Counter

	WatchedAddresses prometheus.Gauge
}

// NewMetrics constructs and registers every metric.
func NewMetrics() *Metrics {
	fastBuckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidcore_events_applied_total",
			Help: "Market events successfully applied to borrower state",
		}, []string{"kind"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidcore_events_rejected_total",
			Help: "Market events dropped (unwatched, dedup, stale index)",
		}, []string{"kind", "reason"}),

		EventApplyDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liquidcore_event_apply_duration_seconds",
			Help:    "Time to apply a single market event",
			Buckets: fastBuckets,
		}, []string{"kind"}),

		StateDriftTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidcore_state_drift_total",
			Help: "Saturating subtractions that clamped to zero",
		}, []string{"kind"}),

		ReorgsHandled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "liquidcore_reorgs_handled_total",
			Help: "Reverted events recovered from",
		}),

		ScanRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "liquidcore_scan_requests_total",
			Help: "scan() invocations",
		}),

		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidcore_scan_duration_seconds",
			Help:    "Wall time of a full scan",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),

		ScanCandidates: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidcore_scan_candidates",
			Help:    "Liquidation candidates found per scan",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		ScanBorrowersSeen: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidcore_scan_borrowers_seen",
			Help:    "Watched borrowers evaluated per scan",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		}),

		AttestationsStale: promauto.NewCounter(prometheus.CounterOpts{
			Name: "liquidcore_attestations_stale_total",
			Help: "Candidates dropped for lack of a postable attestation",
		}),

		ChainReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidcore_chain_read_errors_total",
			Help: "ChainReader calls that failed after retry exhaustion",
		}, []string{"op"}),

		ChainReadRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidcore_chain_read_retries_total",
			Help: "ChainReader retry attempts",
		}, []string{"op"}),

		ChainReadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liquidcore_chain_read_duration_seconds",
			Help:    "ChainReader call latency",
			Buckets: fastBuckets,
		}, []string{"op"}),

		EventSourceReconns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "liquidcore_event_source_reconnects_total",
			Help: "EventSource reconnect attempts",
		}),

		WatchedAddresses: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "liquidcore_watched_addresses",
			Help: "Currently registered addresses",
		}),
	}
}
