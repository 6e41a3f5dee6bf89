package observability

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"fairlaunch/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	volume  *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured sale events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fairlaunch",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted sale events segmented by type.",
			}, []string{"type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fairlaunch",
				Subsystem: "events",
				Name:      "amount_total",
				Help:      "Sum of native amounts carried by sale events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.volume)
	})
	return eventRegistry
}

// RecordEvent counts one event and adds its amount attribute, when present,
// to the volume counter.
func (m *eventMetrics) RecordEvent(kind string, attrs map[string]string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(kind)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
	if raw, ok := attrs["amount"]; ok {
		if amount, err := strconv.ParseUint(raw, 10, 64); err == nil {
			m.volume.WithLabelValues(normalized).Add(float64(amount))
		}
	}
}

// EventRecorder is an emitter that feeds every event into the Events registry.
type EventRecorder struct {
	metrics *eventMetrics
}

// NewEventRecorder returns a recorder bound to the process-wide registry.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{metrics: Events()}
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	var attrs map[string]string
	if payload, ok := evt.(events.Payload); ok && payload.Event() != nil {
		attrs = payload.Event().Attributes
	}
	r.metrics.RecordEvent(evt.EventType(), attrs)
}
