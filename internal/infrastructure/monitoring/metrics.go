package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the host.
type Metrics struct {
	registry *prometheus.Registry

	// Extension protocol
	Calls        *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec

	// Connections
	ConnectionsActive   prometheus.Gauge
	ConnectionsRejected *prometheus.CounterVec

	// Presentation state
	DescriptorsActive *prometheus.GaugeVec

	// Outbound notifications
	Notifications *prometheus.CounterVec

	// Authorization ledger
	AuthorizationChanges *prometheus.CounterVec

	// Control API
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	startTime time.Time
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		Calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notchkit_extension_calls_total",
				Help: "Total number of extension protocol calls",
			},
			[]string{"method", "outcome"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notchkit_extension_call_duration_seconds",
				Help:    "Extension call duration from dispatch to reply",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"method"},
		),

		ConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "notchkit_extension_connections",
				Help: "Number of live extension connections",
			},
		),
		ConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notchkit_extension_connections_rejected_total",
				Help: "Connections refused before upgrade",
			},
			[]string{"reason"},
		),

		DescriptorsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notchkit_descriptors_active",
				Help: "Descriptors in each presentation region's active set",
			},
			[]string{"kind"},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notchkit_notifications_total",
				Help: "Host to extension notifications by delivery outcome",
			},
			[]string{"event", "outcome"},
		),

		AuthorizationChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notchkit_authorization_changes_total",
				Help: "Authorization ledger status transitions",
			},
			[]string{"status"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notchkit_control_requests_total",
				Help: "Total number of control API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notchkit_control_request_duration_seconds",
				Help:    "Control API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "notchkit_uptime_seconds",
			Help: "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry for custom collectors and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCall records one extension call.
func (m *Metrics) RecordCall(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(method, outcome).Inc()
	m.CallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ConnectionOpened increments live connections.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnectionClosed decrements live connections.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// RecordRejectedConnection counts a connection refused before upgrade.
func (m *Metrics) RecordRejectedConnection(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsRejected.WithLabelValues(reason).Inc()
}

// SetDescriptorsActive sets the active set size of one region.
func (m *Metrics) SetDescriptorsActive(kind string, count int) {
	if m == nil {
		return
	}
	m.DescriptorsActive.WithLabelValues(kind).Set(float64(count))
}

// RecordNotification counts one notification delivery attempt.
func (m *Metrics) RecordNotification(event, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(event, outcome).Inc()
}

// RecordAuthorizationChange counts a ledger transition into status.
func (m *Metrics) RecordAuthorizationChange(status string) {
	if m == nil {
		return
	}
	m.AuthorizationChanges.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records a control API request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
