package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the custom prometheus registry for the engine.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// TicketOperations counts lifecycle operations by name and outcome.
var TicketOperations = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "triage",
	Name:      "ticket_operations_total",
	Help:      "Lifecycle operations executed, labelled by operation and outcome",
}, []string{"operation", "outcome"})

// EventsEmitted counts logical events handed to the notification sink.
var EventsEmitted = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "triage",
	Name:      "events_emitted_total",
	Help:      "Logical ticket events emitted after successful mutations",
}, []string{"type"})

// RequestDuration observes HTTP request latency.
var RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "triage",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration by method and route",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// MetricsHandler exposes the registry for scraping.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
