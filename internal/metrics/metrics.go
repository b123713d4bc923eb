// Package metrics exposes the coordinator's Prometheus instrumentation,
// registered against the default registry and served at GET /metrics via
// promhttp.Handler (wired in internal/api).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the counter/gauge surface the Room Registry and Auto-Timer
// Driver report to, matching the rooms.Metrics interface.
type Metrics struct {
	roomsCreated   prometheus.Counter
	roomsFinished  prometheus.Counter
	advanceDayOps  prometheus.Counter
	autoTimerFires prometheus.Counter
	roomsActive    prometheus.Gauge
	httpDuration   *prometheus.HistogramVec
}

// New registers and returns the coordinator's metrics against the default
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		roomsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_rooms_created_total",
			Help: "Total number of rooms created.",
		}),
		roomsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_rooms_finished_total",
			Help: "Total number of rooms that reached the finished state.",
		}),
		advanceDayOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_advance_day_total",
			Help: "Total number of successful advance-day transitions.",
		}),
		autoTimerFires: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_auto_timer_fires_total",
			Help: "Total number of advance-day transitions triggered by the Auto-Timer Driver.",
		}),
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_rooms_active",
			Help: "Number of rooms currently not finished.",
		}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// RoomCreated records a room creation and bumps the active-rooms gauge.
func (m *Metrics) RoomCreated() {
	m.roomsCreated.Inc()
	m.roomsActive.Inc()
}

// RoomFinished records a room reaching the finished state.
func (m *Metrics) RoomFinished() {
	m.roomsFinished.Inc()
	m.roomsActive.Dec()
}

// AdvanceDay records a successful advance-day transition.
func (m *Metrics) AdvanceDay() {
	m.advanceDayOps.Inc()
}

// AutoTimerFire records an advance-day transition the Auto-Timer Driver
// triggered rather than a teacher command.
func (m *Metrics) AutoTimerFire() {
	m.autoTimerFires.Inc()
}

// ObserveHTTP records one request's duration against its route and status.
func (m *Metrics) ObserveHTTP(route, status string, seconds float64) {
	m.httpDuration.WithLabelValues(route, status).Observe(seconds)
}
