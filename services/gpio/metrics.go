package gpio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline's collectors, labelled by chip.
type Metrics struct {
	Captured      prometheus.Counter
	Dispatched    prometheus.Counter
	Discarded     prometheus.Counter
	HandlerCalls  prometheus.Counter
	HandlerPanics prometheus.Counter
	WaitErrors    prometheus.Counter
	Registrations prometheus.Counter

	Lines         prometheus.Gauge
	QueueDepth    prometheus.Gauge
	Rate          prometheus.Gauge
	PacingTimeout prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, chip string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"chip": chip}
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "sensornode", Subsystem: "gpio", Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensornode", Subsystem: "gpio", Name: name, Help: help, ConstLabels: labels,
		})
	}
	return &Metrics{
		Captured:      counter("events_captured_total", "Edge events read from the chip."),
		Dispatched:    counter("events_dispatched_total", "Edge events passed to handlers."),
		Discarded:     counter("events_discarded_total", "Edge events dropped by the inhibit gate."),
		HandlerCalls:  counter("handler_calls_total", "Handler invocations."),
		HandlerPanics: counter("handler_panics_total", "Handlers that panicked."),
		WaitErrors:    counter("wait_errors_total", "Failed bulk edge waits."),
		Registrations: counter("registrations_total", "Interrupt handler registrations."),

		Lines:         gauge("interrupt_lines", "Lines in the bulk wait set."),
		QueueDepth:    gauge("queue_depth", "Captured events waiting for dispatch."),
		Rate:          gauge("dispatch_rate_hz", "Dispatch rate of the last completed window."),
		PacingTimeout: gauge("pacing_timeout_seconds", "Pacing interval derived from the dispatch rate."),
	}
}
