package realtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	activeSessions prometheus.Gauge
	usersOnline    prometheus.Gauge
	sessionTotal   prometheus.Counter
	events         *prometheus.CounterVec
	eventErrors    *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	eventLatency   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codemate_sessions_active",
			Help: "Current number of open realtime sessions.",
		}),
		usersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codemate_users_online",
			Help: "Identities with at least one session on this node.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codemate_sessions_total",
			Help: "Total number of realtime sessions accepted since start.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemate_realtime_events_total",
			Help: "Inbound realtime events by name.",
		}, []string{"event"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemate_realtime_errors_total",
			Help: "Realtime handler failures by error code.",
		}, []string{"code"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemate_messages_sent_total",
			Help: "Messages persisted, by the transport they arrived on.",
		}, []string{"transport"}),
		eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codemate_realtime_event_seconds",
			Help:    "Latency for handling inbound realtime events.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.usersOnline,
		m.sessionTotal,
		m.events,
		m.eventErrors,
		m.messagesSent,
		m.eventLatency,
	)
	return m
}

func (m *Metrics) incSession() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionTotal.Inc()
}

func (m *Metrics) decSession() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) setUsersOnline(n int) {
	if m == nil {
		return
	}
	m.usersOnline.Set(float64(n))
}

func (m *Metrics) observeEvent(event string, dur time.Duration) {
	if m == nil || event == "" {
		return
	}
	m.events.WithLabelValues(event).Inc()
	m.eventLatency.WithLabelValues(event).Observe(dur.Seconds())
}

func (m *Metrics) recordError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.eventErrors.WithLabelValues(code).Inc()
}

// RecordMessageSent counts a persisted message. transport is "rest" or "ws".
func (m *Metrics) RecordMessageSent(transport string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(transport).Inc()
}
