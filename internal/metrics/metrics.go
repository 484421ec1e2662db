package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records client-side signaling and session events.
type Collector interface {
	// Session metrics
	SessionStarted(role string)
	SessionPhase(role, phase string)
	SessionFailed(role, kind string)
	SessionStopped(role string)

	// ICE metrics
	CandidateBuffered(role string)
	CandidateSent(role string)
	RemoteCandidateApplied(role string, ok bool)

	// Signaling metrics
	SignalingMessageSent(messageType string, sizeBytes int)
	SignalingMessageReceived(messageType string, sizeBytes int)
	SignalingMessageDropped(messageType, reason string)
}

// PrometheusCollector implements Collector using Prometheus.
type PrometheusCollector struct {
	registry *prometheus.Registry

	sessionsStarted *prometheus.CounterVec
	sessionsFailed  *prometheus.CounterVec
	sessionsStopped *prometheus.CounterVec
	activeSessions  *prometheus.GaugeVec
	phaseChanges    *prometheus.CounterVec

	candidatesBuffered *prometheus.CounterVec
	candidatesSent     *prometheus.CounterVec
	remoteCandidates   *prometheus.CounterVec

	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec
}

// NewPrometheusCollector registers the client metrics on a fresh registry.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_sessions_started_total",
			Help: "Total number of broadcast/viewing sessions started",
		}, []string{"role"}),
		sessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_sessions_failed_total",
			Help: "Total number of sessions torn down by a fatal error",
		}, []string{"role", "kind"}),
		sessionsStopped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_sessions_stopped_total",
			Help: "Total number of sessions stopped by the caller",
		}, []string{"role"}),
		activeSessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecast_active_sessions",
			Help: "Number of sessions not yet closed",
		}, []string{"role"}),
		phaseChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_session_phase_transitions_total",
			Help: "Session phase transitions",
		}, []string{"role", "phase"}),

		candidatesBuffered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_ice_candidates_buffered_total",
			Help: "Local ICE candidates held until the remote side answered",
		}, []string{"role"}),
		candidatesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_ice_candidates_sent_total",
			Help: "Local ICE candidates sent to the relay",
		}, []string{"role"}),
		remoteCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_remote_ice_candidates_total",
			Help: "Remote ICE candidates applied to the peer connection",
		}, []string{"role", "result"}),

		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_signaling_messages_sent_total",
			Help: "Total number of signaling messages sent",
		}, []string{"message_type"}),
		messagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_signaling_messages_received_total",
			Help: "Total number of signaling messages received",
		}, []string{"message_type"}),
		messagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_signaling_messages_dropped_total",
			Help: "Signaling messages that were not delivered",
		}, []string{"message_type", "reason"}),
		messageSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecast_signaling_message_size_bytes",
			Help:    "Size of signaling messages in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64B to 32KB
		}, []string{"message_type", "direction"}),
	}
}

// SessionStarted records a session start
func (c *PrometheusCollector) SessionStarted(role string) {
	c.sessionsStarted.WithLabelValues(role).Inc()
	c.activeSessions.WithLabelValues(role).Inc()
}

// SessionPhase records a phase transition
func (c *PrometheusCollector) SessionPhase(role, phase string) {
	c.phaseChanges.WithLabelValues(role, phase).Inc()
}

// SessionFailed records a fatal session failure
func (c *PrometheusCollector) SessionFailed(role, kind string) {
	c.sessionsFailed.WithLabelValues(role, kind).Inc()
	c.activeSessions.WithLabelValues(role).Dec()
}

// SessionStopped records an explicit stop
func (c *PrometheusCollector) SessionStopped(role string) {
	c.sessionsStopped.WithLabelValues(role).Inc()
	c.activeSessions.WithLabelValues(role).Dec()
}

func (c *PrometheusCollector) CandidateBuffered(role string) {
	c.candidatesBuffered.WithLabelValues(role).Inc()
}

func (c *PrometheusCollector) CandidateSent(role string) {
	c.candidatesSent.WithLabelValues(role).Inc()
}

func (c *PrometheusCollector) RemoteCandidateApplied(role string, ok bool) {
	result := "applied"
	if !ok {
		result = "rejected"
	}
	c.remoteCandidates.WithLabelValues(role, result).Inc()
}

// SignalingMessageSent records a signaling message being sent
func (c *PrometheusCollector) SignalingMessageSent(messageType string, sizeBytes int) {
	c.messagesSent.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "sent").Observe(float64(sizeBytes))
}

// SignalingMessageReceived records a signaling message being received
func (c *PrometheusCollector) SignalingMessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "received").Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) SignalingMessageDropped(messageType, reason string) {
	c.messagesDropped.WithLabelValues(messageType, reason).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) SessionStarted(string)                  {}
func (Nop) SessionPhase(string, string)            {}
func (Nop) SessionFailed(string, string)           {}
func (Nop) SessionStopped(string)                  {}
func (Nop) CandidateBuffered(string)               {}
func (Nop) CandidateSent(string)                   {}
func (Nop) RemoteCandidateApplied(string, bool)    {}
func (Nop) SignalingMessageSent(string, int)       {}
func (Nop) SignalingMessageReceived(string, int)   {}
func (Nop) SignalingMessageDropped(string, string) {}
