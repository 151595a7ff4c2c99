package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Hybrid search metrics. Wired into the engine through search.MetricsObserver.
var (
	SearchQueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_queries_total",
		Help:      "Hybrid searches that reached the channel stage",
	})

	SearchChannelHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_channel_hits",
			Help:      "Hits returned by a single search channel",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"channel"},
	)

	SearchChannelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_channel_duration_seconds",
			Help:      "Search channel latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"channel"},
	)

	SearchTextDegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_text_degraded_total",
		Help:      "Searches answered from the vector channel only because the text channel failed",
	})

	SearchResultsReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_results_returned",
		Help:      "Results returned after fusion",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
)

// LLM streaming metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Chat completion requests",
		},
		[]string{"model", "mode", "status"}, // mode: stream / complete
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Chat completion duration in seconds, measured to the last delta",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model", "mode"},
	)

	LLMDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_stream_deltas_total",
			Help:      "Content deltas forwarded from streaming completions",
		},
		[]string{"model"},
	)
)

var searchOnce, llmOnce sync.Once

// RegisterSearchMetrics registers the hybrid search collectors.
func RegisterSearchMetrics() {
	searchOnce.Do(func() {
		prometheus.MustRegister(
			SearchQueriesTotal,
			SearchChannelHits,
			SearchChannelDuration,
			SearchTextDegradedTotal,
			SearchResultsReturned,
		)
	})
}

// RegisterLLMMetrics registers the chat completion collectors.
func RegisterLLMMetrics() {
	llmOnce.Do(func() {
		prometheus.MustRegister(LLMRequestsTotal, LLMRequestDuration, LLMDeltasTotal)
	})
}
