package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	pollDurationBucketStart  = 0.05
	pollDurationBucketFactor = 2.0
	pollDurationBucketCount  = 10
)

const (
	reportDurationBucketStart  = 1.0
	reportDurationBucketFactor = 2.0
	reportDurationBucketCount  = 9
)

const (
	minioBucketStart  = 0.1
	minioBucketFactor = 2
	minioBucketCount  = 10
)

var LivePollDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "live_poll_duration_seconds",
		Help: "Time taken to fetch and reconcile live call sources",
		Buckets: prometheus.ExponentialBuckets(
			pollDurationBucketStart,
			pollDurationBucketFactor,
			pollDurationBucketCount,
		),
	},
	[]string{"result"},
)

var LiveCalls = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "live_calls",
		Help: "Number of calls in the latest applied live snapshot",
	},
)

var StalePollResults = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "live_poll_stale_results_total",
		Help: "Poll results discarded because a newer poll was already applied",
	},
)

var ReportGenerationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "report_generation_duration_seconds",
		Help: "Time taken to generate a call report",
		Buckets: prometheus.ExponentialBuckets(
			reportDurationBucketStart,
			reportDurationBucketFactor,
			reportDurationBucketCount,
		),
	},
	[]string{"outcome"},
)

var LLMRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "llm_request_duration_seconds",
		Help: "Time taken by chat completion requests",
		Buckets: prometheus.ExponentialBuckets(
			reportDurationBucketStart,
			reportDurationBucketFactor,
			reportDurationBucketCount,
		),
	},
	[]string{"operation"},
)

var MinioOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "minio_operation_duration_seconds",
		Help: "Time taken by object storage operations",
		Buckets: prometheus.ExponentialBuckets(
			minioBucketStart,
			minioBucketFactor,
			minioBucketCount,
		),
	},
	[]string{"operation"},
)

var ReportEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "report_events_published_total",
		Help: "Report events published to kafka",
	},
	[]string{"type", "result"},
)

func init() {
	prometheus.MustRegister(LivePollDuration)
	prometheus.MustRegister(LiveCalls)
	prometheus.MustRegister(StalePollResults)
	prometheus.MustRegister(ReportGenerationDuration)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(MinioOperationDuration)
	prometheus.MustRegister(ReportEvents)
}
