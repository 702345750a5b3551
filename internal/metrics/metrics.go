// Package metrics exposes delivery pipeline counters in Prometheus
// exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsSerialized counts events successfully appended to a batch.
	EventsSerialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_events_serialized_total",
		Help: "The total number of events serialized into batches",
	})

	// EventsDropped counts events rejected during serialization.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_events_dropped_total",
		Help: "The total number of events dropped due to serialization failures",
	})

	// PostsTotal counts HEC posts by observed status code.
	PostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hecsink_posts_total",
		Help: "Total number of HEC post attempts by HTTP status",
	}, []string{"status"})

	// BytesForwarded counts payload bytes delivered to the collector.
	BytesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_bytes_forwarded_total",
		Help: "The total number of payload bytes successfully forwarded",
	})

	// Retries counts redelivery attempts after a failed flush.
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_retries_total",
		Help: "The total number of flush retries",
	})

	// DLQWrites counts payloads routed to the dead letter queue.
	DLQWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_dlq_writes_total",
		Help: "The total number of payloads written to the dead letter queue",
	})

	// LinesRead counts ingested log lines by source.
	LinesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hecsink_lines_read_total",
		Help: "Total number of log lines read by ingest source",
	}, []string{"source"})

	// ConnsRejected counts TCP connections refused by the ingest allowlist.
	ConnsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_conns_rejected_total",
		Help: "The total number of ingest connections refused by the allowlist",
	})

	// LinesRejected counts ingested lines discarded before parsing.
	LinesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hecsink_lines_rejected_total",
		Help: "The total number of log lines rejected (oversized or unreadable)",
	})

	// FlushDuration observes end-to-end flush latency.
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hecsink_flush_duration_seconds",
		Help:    "Time taken to deliver one batch, including retries",
		Buckets: prometheus.DefBuckets,
	})
)
