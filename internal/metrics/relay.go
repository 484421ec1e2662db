package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RelayCollector records relay server events.
type RelayCollector interface {
	ClientConnected()
	ClientDisconnected()
	RoomOpened()
	RoomClosed()
	MessageRouted(messageType string)
	MessageRejected(messageType, reason string)
}

// PrometheusRelayCollector implements RelayCollector using Prometheus.
type PrometheusRelayCollector struct {
	registry *prometheus.Registry

	activeClients    prometheus.Gauge
	activeRooms      prometheus.Gauge
	roomsOpened      prometheus.Counter
	messagesRouted   *prometheus.CounterVec
	messagesRejected *prometheus.CounterVec
}

// NewPrometheusRelayCollector registers the relay metrics on a fresh registry.
func NewPrometheusRelayCollector() *PrometheusRelayCollector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &PrometheusRelayCollector{
		registry: reg,
		activeClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_clients",
			Help: "Number of connected WebSocket clients",
		}),
		activeRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_rooms",
			Help: "Number of running broadcasts",
		}),
		roomsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_rooms_opened_total",
			Help: "Total number of broadcasts started",
		}),
		messagesRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_routed_total",
			Help: "Signaling messages accepted and routed",
		}, []string{"message_type"}),
		messagesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_rejected_total",
			Help: "Signaling messages answered with an error",
		}, []string{"message_type", "reason"}),
	}
}

func (c *PrometheusRelayCollector) ClientConnected()    { c.activeClients.Inc() }
func (c *PrometheusRelayCollector) ClientDisconnected() { c.activeClients.Dec() }

func (c *PrometheusRelayCollector) RoomOpened() {
	c.roomsOpened.Inc()
	c.activeRooms.Inc()
}

func (c *PrometheusRelayCollector) RoomClosed() { c.activeRooms.Dec() }

func (c *PrometheusRelayCollector) MessageRouted(messageType string) {
	c.messagesRouted.WithLabelValues(messageType).Inc()
}

func (c *PrometheusRelayCollector) MessageRejected(messageType, reason string) {
	c.messagesRejected.WithLabelValues(messageType, reason).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusRelayCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// NopRelay discards relay events.
type NopRelay struct{}

func (NopRelay) ClientConnected()               {}
func (NopRelay) ClientDisconnected()            {}
func (NopRelay) RoomOpened()                    {}
func (NopRelay) RoomClosed()                    {}
func (NopRelay) MessageRouted(string)           {}
func (NopRelay) MessageRejected(string, string) {}
