// Package metrics provides Prometheus metrics for the playback and download engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No item, job or session ids in labels.

var (
	resolveDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narwhal_player_resolve_decision_total",
		Help: "Total number of playback resolutions, by decision and target.",
	}, []string{"decision", "target"})

	resolveFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narwhal_player_resolve_failure_total",
		Help: "Total number of failed playback resolutions, by reason.",
	}, []string{"reason"})

	downloadTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narwhal_player_download_transition_total",
		Help: "Total number of download job state transitions, by status and kind.",
	}, []string{"status", "kind"})

	// DownloadActiveJobs is 1 while a job holds the active slot.
	DownloadActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narwhal_player_download_active_jobs",
		Help: "Number of download jobs currently downloading or remuxing.",
	})

	// DownloadQueuedJobs tracks jobs waiting for the active slot.
	DownloadQueuedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narwhal_player_download_queued_jobs",
		Help: "Number of download jobs waiting in the queue.",
	})

	segmentFetchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "narwhal_player_segment_fetch_seconds",
		Help:    "Duration of single segment fetches.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	sessionReportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narwhal_player_session_report_total",
		Help: "Total number of playback session reports, by report type and result.",
	}, []string{"report", "result"})

	trickplayThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narwhal_player_trickplay_throttled_total",
		Help: "Total number of trickplay lookups dropped by the throttle.",
	})
)

// RecordResolveDecision records one successful resolution.
func RecordResolveDecision(decision, target string) {
	resolveDecisionTotal.WithLabelValues(normalizeDecisionLabel(decision), normalizeTargetLabel(target)).Inc()
}

// RecordResolveFailure records a failed resolution.
func RecordResolveFailure(reason string) {
	switch reason {
	case "negotiation", "unsupported", "live":
	default:
		reason = "unknown"
	}
	resolveFailureTotal.WithLabelValues(reason).Inc()
}

// RecordDownloadTransition records a job entering status.
func RecordDownloadTransition(status, kind string) {
	downloadTransitionTotal.WithLabelValues(strings.ToLower(status), strings.ToLower(kind)).Inc()
}

// ObserveSegmentFetch records the duration of one segment fetch.
func ObserveSegmentFetch(seconds float64) {
	segmentFetchSeconds.Observe(seconds)
}

// RecordSessionReport records one session report attempt.
func RecordSessionReport(report string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sessionReportTotal.WithLabelValues(report, result).Inc()
}

// RecordTrickplayThrottled records a throttled trickplay lookup.
func RecordTrickplayThrottled() {
	trickplayThrottledTotal.Inc()
}

func normalizeDecisionLabel(decision string) string {
	switch d := strings.ToLower(strings.TrimSpace(decision)); d {
	case "directplay", "transcode", "universalaudio":
		return d
	default:
		return "unknown"
	}
}

func normalizeTargetLabel(target string) string {
	switch t := strings.ToLower(strings.TrimSpace(target)); t {
	case "local-ios", "cast", "low-power":
		return t
	default:
		return "unknown"
	}
}
