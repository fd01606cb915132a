// Package metrics exposes Prometheus instrumentation for the session
// runtime and transport layer. It has no dependency on either package's
// internal types — callers pass plain values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "otrelay",
		Name:      "active_sessions",
		Help:      "Number of document sessions currently registered in the Manager.",
	})

	Subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "otrelay",
		Name:      "subscribers",
		Help:      "Number of connected subscribers per document.",
	}, []string{"document"})

	OperationsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otrelay",
		Name:      "operations_committed_total",
		Help:      "Operations committed to a document's log.",
	}, []string{"document"})

	SubscribersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otrelay",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers dropped for lagging past the fan-out buffer.",
	}, []string{"document"})

	FramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otrelay",
		Name:      "frames_rejected_total",
		Help:      "Inbound WebSocket frames rejected, by reason.",
	}, []string{"reason"})
)
