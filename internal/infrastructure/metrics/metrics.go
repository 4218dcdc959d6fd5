package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flora"

// Rejection reasons used as the "reason" label on ingest_rejected_total.
const (
	ReasonInvalidInput  = "invalid_input"
	ReasonUnknownDevice = "unknown_device"
	ReasonMalformed     = "malformed"
)

// Command outcomes used as the "result" label on commands_total.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "actuation_failed"
)

// Metrics is the set of collectors Flora Core reports.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
type Metrics struct {
	registry *prometheus.Registry

	ingestAccepted   *prometheus.CounterVec
	ingestRejected   *prometheus.CounterVec
	subscribers      prometheus.Gauge
	eventsPublished  prometheus.Counter
	subscribersPrune prometheus.Counter
	commands         *prometheus.CounterVec
	devices          prometheus.GaugeFunc
}

// New registers all collectors on a fresh registry. deviceCount, when
// non-nil, backs the flora_devices gauge.
func New(deviceCount func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ingestAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_accepted_total",
			Help:      "Readings merged into the registry, by source.",
		}, []string{"source"}),
		ingestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejected_total",
			Help:      "Readings rejected before reaching the registry, by reason.",
		}, []string{"reason"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_subscribers",
			Help:      "Currently attached real-time subscribers.",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_events_total",
			Help:      "Events fanned out by the broadcast hub.",
		}),
		subscribersPrune: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_pruned_total",
			Help:      "Subscribers removed after a failed delivery.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command relay requests, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.ingestAccepted,
		m.ingestRejected,
		m.subscribers,
		m.eventsPublished,
		m.subscribersPrune,
		m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if deviceCount != nil {
		m.devices = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices known to the registry.",
		}, func() float64 { return float64(deviceCount()) })
		reg.MustRegister(m.devices)
	}

	return m
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IngestAccepted counts one merged reading from source ("http" or "mqtt").
func (m *Metrics) IngestAccepted(source string) {
	if m == nil {
		return
	}
	m.ingestAccepted.WithLabelValues(source).Inc()
}

// IngestRejected counts one rejected reading.
func (m *Metrics) IngestRejected(reason string) {
	if m == nil {
		return
	}
	m.ingestRejected.WithLabelValues(reason).Inc()
}

// SetSubscribers records the current hub size.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// EventPublished counts one hub fan-out.
func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

// SubscriberPruned counts one subscriber dropped after a delivery failure.
func (m *Metrics) SubscriberPruned() {
	if m == nil {
		return
	}
	m.subscribersPrune.Inc()
}

// Command counts one relay request with its result.
func (m *Metrics) Command(result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(result).Inc()
}
