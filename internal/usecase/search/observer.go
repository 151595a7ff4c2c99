package search

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/logger"
)

// EventKind names a hybrid search lifecycle event.
type EventKind string

// Hybrid search events.
const (
	EventQueryIssued  EventKind = "query_issued"
	EventChannelDone  EventKind = "channel_done"
	EventTextDegraded EventKind = "text_degraded"
	EventFused        EventKind = "fused"
)

// Channel identifies one retrieval channel.
type Channel string

// Retrieval channels.
const (
	ChannelVector Channel = "vector"
	ChannelText   Channel = "text"
)

// Event is a structured record emitted by the engine. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind     EventKind
	Query    string
	Limit    int
	Channel  Channel
	Hits     int
	Duration time.Duration
	Err      error
	Fusion   FuseStats
}

// Observer receives engine events. Implementations must be safe for
// concurrent use: channel events arrive from parallel goroutines.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiObserver fans an event out to every observer in order.
type MultiObserver []Observer

// Observe forwards ev to all observers.
func (m MultiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

// LogObserver writes events through zap. The request-scoped logger from the
// context wins over the base logger.
type LogObserver struct {
	base *zap.Logger
}

// NewLogObserver creates a logging observer.
func NewLogObserver(base *zap.Logger) *LogObserver {
	if base == nil {
		base = zap.NewNop()
	}
	return &LogObserver{base: base}
}

// Observe logs ev. Degradation is a warning, everything else is debug.
func (o *LogObserver) Observe(ctx context.Context, ev Event) {
	l := logger.FromContextOr(ctx, o.base)

	switch ev.Kind {
	case EventQueryIssued:
		l.Debug("Hybrid search issued",
			zap.Int("query_len", len(ev.Query)),
			zap.Int("limit", ev.Limit),
		)
	case EventChannelDone:
		l.Debug("Search channel completed",
			zap.String("channel", string(ev.Channel)),
			zap.Int("hits", ev.Hits),
			zap.Duration("duration", ev.Duration),
		)
	case EventTextDegraded:
		l.Warn("Text channel failed, using vector results only",
			zap.Error(ev.Err),
		)
	case EventFused:
		l.Debug("Hybrid search fused",
			zap.Int("vector_hits", ev.Fusion.VectorHits),
			zap.Int("text_hits", ev.Fusion.TextHits),
			zap.Int("text_only", ev.Fusion.TextOnly),
			zap.Int("returned", ev.Fusion.Returned),
		)
	}
}

// Metrics holds the Prometheus collectors fed by MetricsObserver.
// Any field may be nil.
type Metrics struct {
	Searches        prometheus.Counter       // one per issued query
	ChannelHits     *prometheus.HistogramVec // label: channel
	ChannelDuration *prometheus.HistogramVec // label: channel
	TextDegraded    prometheus.Counter
	Returned        prometheus.Histogram
}

// MetricsObserver records engine events as Prometheus metrics.
type MetricsObserver struct {
	m Metrics
}

// NewMetricsObserver creates a Prometheus observer.
func NewMetricsObserver(m Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

// Observe updates the collector matching ev.Kind.
func (o *MetricsObserver) Observe(_ context.Context, ev Event) {
	switch ev.Kind {
	case EventQueryIssued:
		if o.m.Searches != nil {
			o.m.Searches.Inc()
		}
	case EventChannelDone:
		if o.m.ChannelHits != nil {
			o.m.ChannelHits.WithLabelValues(string(ev.Channel)).Observe(float64(ev.Hits))
		}
		if o.m.ChannelDuration != nil {
			o.m.ChannelDuration.WithLabelValues(string(ev.Channel)).Observe(ev.Duration.Seconds())
		}
	case EventTextDegraded:
		if o.m.TextDegraded != nil {
			o.m.TextDegraded.Inc()
		}
	case EventFused:
		if o.m.Returned != nil {
			o.m.Returned.Observe(float64(ev.Fusion.Returned))
		}
	}
}
