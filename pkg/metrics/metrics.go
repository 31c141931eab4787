package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	aiTryon = "ai_tryon"

	// Queue metrics
	fittingJobsTotal    = "fitting_jobs_total"
	fittingJobQueueSize = "fitting_job_queue_size"
	jobRetriesTotal     = "fitting_job_retries_total"

	// Generation metrics
	generationRequestsTotal   = "generation_requests_total"
	generationRequestDuration = "generation_request_duration_seconds"

	// Cache metrics
	imageCacheRequestsTotal = "image_cache_requests_total"

	// Labels
	jobStateLabel         = "state"
	generationResultLabel = "result"
	cacheOutcomeLabel     = "outcome"
)

/**
* Metrics definition
**/
var fittingJobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: aiTryon,
		Name:      fittingJobsTotal,
		Help:      "number of fitting jobs reaching a terminal state",
	},
	[]string{jobStateLabel},
)

var fittingJobQueueSizeMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: aiTryon,
		Name:      fittingJobQueueSize,
		Help:      "number of fitting jobs in each non-terminal state",
	},
	[]string{jobStateLabel},
)

var jobRetriesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: aiTryon,
		Name:      jobRetriesTotal,
		Help:      "number of fitting job retries",
	},
)

var generationRequestsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: aiTryon,
		Name:      generationRequestsTotal,
		Help:      "number of generation API calls partitioned by result",
	},
	[]string{generationResultLabel},
)

var generationRequestDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: aiTryon,
		Name:      generationRequestDuration,
		Help:      "time spent waiting for the generation API",
		Buckets:   []float64{1, 5, 10, 30, 60, 120},
	},
)

var imageCacheRequestsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: aiTryon,
		Name:      imageCacheRequestsTotal,
		Help:      "number of image cache lookups partitioned by outcome",
	},
	[]string{cacheOutcomeLabel},
)

func IncreaseFittingJobsTotalMetric(state string) {
	fittingJobsTotalMetric.With(prometheus.Labels{jobStateLabel: state}).Inc()
}

func UpdateFittingJobQueueSizeMetric(state string, count int) {
	fittingJobQueueSizeMetric.With(prometheus.Labels{jobStateLabel: state}).Set(float64(count))
}

func IncreaseJobRetriesTotalMetric() {
	jobRetriesTotalMetric.Inc()
}

func IncreaseGenerationRequestsTotalMetric(result string) {
	generationRequestsTotalMetric.With(prometheus.Labels{generationResultLabel: result}).Inc()
}

func ObserveGenerationRequestDuration(d time.Duration) {
	generationRequestDurationMetric.Observe(d.Seconds())
}

func IncreaseImageCacheRequestsTotalMetric(outcome string) {
	imageCacheRequestsTotalMetric.With(prometheus.Labels{cacheOutcomeLabel: outcome}).Inc()
}

func init() {
	prometheus.MustRegister(
		fittingJobsTotalMetric,
		fittingJobQueueSizeMetric,
		jobRetriesTotalMetric,
		generationRequestsTotalMetric,
		generationRequestDurationMetric,
		imageCacheRequestsTotalMetric,
	)
}
