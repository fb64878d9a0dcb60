package stream

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "typedb_driver"
	metricsSubsystem = "stream"
)

// Metrics counts multiplexer activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	batches         prometheus.Counter
	requests        prometheus.Counter
	continuations   prometheus.Counter
	unknownRequests prometheus.Counter
	depthWarnings   prometheus.Counter
	openStreams     prometheus.Gauge
}

// NewMetrics builds the multiplexer metrics and registers them on reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "batches_flushed_total",
			Help:      "Number of request batches written to the network.",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_sent_total",
			Help:      "Number of requests written to the network, continuations included.",
		}),
		continuations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "continuations_total",
			Help:      "Number of continuation requests dispatched after a CONTINUE state.",
		}),
		unknownRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "unknown_request_ids_total",
			Help:      "Number of response parts dropped because no collector was registered for their request id.",
		}),
		depthWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_depth_warnings_total",
			Help:      "Number of response parts queued while a request queue was above the warning depth.",
		}),
		openStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "open_requests",
			Help:      "Number of requests currently registered in a response collector.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.batches, m.requests, m.continuations, m.unknownRequests, m.depthWarnings, m.openStreams)
	}
	return m
}

func (m *Metrics) batchFlushed(size int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.requests.Add(float64(size))
}

func (m *Metrics) continuation() {
	if m != nil {
		m.continuations.Inc()
	}
}

func (m *Metrics) unknownRequest() {
	if m != nil {
		m.unknownRequests.Inc()
	}
}

func (m *Metrics) depthWarning() {
	if m != nil {
		m.depthWarnings.Inc()
	}
}

func (m *Metrics) streamOpened() {
	if m != nil {
		m.openStreams.Inc()
	}
}

func (m *Metrics) streamsReleased(n int) {
	if m != nil && n > 0 {
		m.openStreams.Sub(float64(n))
	}
}
