// Package metrics exposes Prometheus collectors for the session manager,
// the message router and the UI bridge.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ntbridge"

// Connect results.
const (
	ResultOK      = "ok"
	ResultInvalid = "invalid_address"
	ResultFailed  = "failed"
)

// Write paths.
const (
	PathLive     = "live"
	PathCached   = "cached"
	PathRejected = "rejected"
)

// Metrics holds every collector and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	connects          *prometheus.CounterVec
	messagesRouted    prometheus.Counter
	messagesDropped   prometheus.Counter
	writes            *prometheus.CounterVec
	flushFailures     prometheus.Counter
	publishersCreated prometheus.Counter
	resubscribes      prometheus.Counter
	routerFailures    prometheus.Counter
	commands          *prometheus.CounterVec

	connected     prometheus.Gauge
	pendingWrites prometheus.Gauge
	subscriptions prometheus.Gauge
	uiClients     prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Connect requests by result",
		}, []string{"result"}),
		messagesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_forwarded_total",
			Help:      "Incoming topic updates forwarded to the event sink",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_dropped_total",
			Help:      "Incoming topic updates dropped for lack of a subscriber",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "writes_total",
			Help:      "Write requests by path",
		}, []string{"path"}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "flush_failures_total",
			Help:      "Cached writes that failed to replay on connect",
		}),
		publishersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "publishers_created_total",
			Help:      "Topic publishers announced to the server",
		}),
		resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "resubscribes_total",
			Help:      "Broad subscription attempts after the first",
		}),
		routerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "failures_total",
			Help:      "Routers that gave up after exhausting retries",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "UI commands by name and result",
		}, []string{"command", "result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while a server connection is installed",
		}),
		pendingWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pending_writes",
			Help:      "Writes cached while disconnected",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "subscribed_topics",
			Help:      "Topics with at least one subscriber",
		}),
		uiClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "ui_clients",
			Help:      "Connected websocket clients",
		}),
	}

	m.registry.MustRegister(
		m.connects,
		m.messagesRouted,
		m.messagesDropped,
		m.writes,
		m.flushFailures,
		m.publishersCreated,
		m.resubscribes,
		m.routerFailures,
		m.commands,
		m.connected,
		m.pendingWrites,
		m.subscriptions,
		m.uiClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Connect(result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) MessageForwarded() {
	if m == nil {
		return
	}
	m.messagesRouted.Inc()
}

func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

func (m *Metrics) Write(path string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(path).Inc()
}

func (m *Metrics) FlushFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.flushFailures.Add(float64(n))
}

func (m *Metrics) PublisherCreated() {
	if m == nil {
		return
	}
	m.publishersCreated.Inc()
}

func (m *Metrics) Resubscribe() {
	if m == nil {
		return
	}
	m.resubscribes.Inc()
}

func (m *Metrics) RouterFailed() {
	if m == nil {
		return
	}
	m.routerFailures.Inc()
}

func (m *Metrics) Command(name, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) SetPendingWrites(n int) {
	if m == nil {
		return
	}
	m.pendingWrites.Set(float64(n))
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *Metrics) SetUIClients(n int) {
	if m == nil {
		return
	}
	m.uiClients.Set(float64(n))
}
