package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aegis/internal/domain"
)

// Metrics groups the Prometheus collectors. A nil *Metrics is valid and
// records nothing, so tests and CLI commands can skip registration.
type Metrics struct {
	EventsClassified  *prometheus.CounterVec
	AutoRemediations  *prometheus.CounterVec
	Responses         *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	SweepRuns         *prometheus.CounterVec
	SweepDuration     *prometheus.HistogramVec
	SweepEvents       *prometheus.CounterVec
	SensorEvents      *prometheus.CounterVec
	HistorySize       prometheus.Gauge
	ListSize          *prometheus.GaugeVec
	ScanTasksInFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_events_classified_total",
			Help: "Events classified, by severity",
		}, []string{"severity"}),
		AutoRemediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_auto_remediations_total",
			Help: "Remediations triggered by classification, by action",
		}, []string{"action"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_responses_total",
			Help: "Response actions executed, by action and result",
		}, []string{"action", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_notifications_total",
			Help: "UI notifications, by sink and result",
		}, []string{"sink", "result"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_sweep_runs_total",
			Help: "Sweeps run, by sweep and result",
		}, []string{"sweep", "result"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_sweep_duration_seconds",
			Help:    "Sweep duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"sweep"}),
		SweepEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_sweep_events_total",
			Help: "Events produced by sweeps",
		}, []string{"sweep"}),
		SensorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_sensor_events_total",
			Help: "Sensor events, by source and result",
		}, []string{"source", "result"}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_history_records",
			Help: "Records held by the history log",
		}),
		ListSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_list_patterns",
			Help: "Patterns per list",
		}, []string{"list"}),
		ScanTasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_scan_tasks_in_flight",
			Help: "On-demand scans running or queued",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsClassified, m.AutoRemediations, m.Responses, m.Notifications,
			m.SweepRuns, m.SweepDuration, m.SweepEvents, m.SensorEvents,
			m.HistorySize, m.ListSize, m.ScanTasksInFlight,
		)
	}
	return m
}

func (m *Metrics) ObserveClassified(sev domain.Severity) {
	if m == nil {
		return
	}
	m.EventsClassified.WithLabelValues(sev.String()).Inc()
}

func (m *Metrics) ObserveAutoRemediation(action domain.Action) {
	if m == nil {
		return
	}
	m.AutoRemediations.WithLabelValues(action.String()).Inc()
}

func (m *Metrics) ObserveResponse(action domain.Action, err error) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(action.String(), result(err)).Inc()
}

func (m *Metrics) ObserveNotification(sink string, delivered bool) {
	if m == nil {
		return
	}
	r := "delivered"
	if !delivered {
		r = "dropped"
	}
	m.Notifications.WithLabelValues(sink, r).Inc()
}

func (m *Metrics) ObserveSweep(sweep string, started time.Time, events int, err error) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(sweep, result(err)).Inc()
	m.SweepDuration.WithLabelValues(sweep).Observe(time.Since(started).Seconds())
	m.SweepEvents.WithLabelValues(sweep).Add(float64(events))
}

func (m *Metrics) ObserveSensorEvent(source string, accepted bool) {
	if m == nil {
		return
	}
	r := "accepted"
	if !accepted {
		r = "dropped"
	}
	m.SensorEvents.WithLabelValues(source, r).Inc()
}

func (m *Metrics) SetHistorySize(n int) {
	if m == nil {
		return
	}
	m.HistorySize.Set(float64(n))
}

func (m *Metrics) SetListSize(kind domain.ListKind, n int) {
	if m == nil {
		return
	}
	m.ListSize.WithLabelValues(kind.String()).Set(float64(n))
}

func (m *Metrics) AddScanTasks(delta int) {
	if m == nil {
		return
	}
	m.ScanTasksInFlight.Add(float64(delta))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
