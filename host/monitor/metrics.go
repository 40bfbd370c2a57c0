package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"leadscrew/host/device"
)

// Metrics exports the controller state as Prometheus gauges
type Metrics struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	rpm         prometheus.Gauge
	revolutions prometheus.Gauge
	angle       prometheus.Gauge
	lag         prometheus.Gauge
	required    prometheus.Gauge
	actual      prometheus.Gauge
	limited     prometheus.Gauge
	ratio       prometheus.Gauge
	configDrift prometheus.Gauge
	reports     prometheus.Counter
	pollErrors  prometheus.Counter
}

// NewMetrics creates the collector. A nil reg means the default registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "leadscrew"
	}
	m := &Metrics{reg: reg, namespace: namespace}
	m.ensureRegistered()
	return m
}

func (m *Metrics) gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Metrics) ensureRegistered() {
	m.once.Do(func() {
		m.rpm = m.gauge("spindle", "rpm", "Spindle speed in revolutions per minute, negative when reversed.")
		m.revolutions = m.gauge("spindle", "revolutions", "Completed spindle revolutions since the last reset.")
		m.angle = m.gauge("spindle", "angle_steps", "Spindle angle in encoder steps within the current turn.")
		m.lag = m.gauge("carriage", "lag_steps", "Steps the carriage still owes.")
		m.required = m.gauge("carriage", "required_steps", "Position the carriage should be at.")
		m.actual = m.gauge("carriage", "actual_steps", "Position the carriage has reached.")
		m.limited = m.gauge("carriage", "limit_latched", "1 while a travel limit is latched.")
		m.ratio = m.gauge("", "ratio", "Configured gear ratio.")
		m.configDrift = m.gauge("", "config_drift", "1 when the device configuration differs from the host file.")
		m.reports = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "status_reports_total",
			Help:      "Status reports received from the device.",
		})
		m.pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "poll_errors_total",
			Help:      "Status polls that failed.",
		})

		m.reg.MustRegister(
			m.rpm, m.revolutions, m.angle, m.lag, m.required, m.actual,
			m.limited, m.ratio, m.configDrift, m.reports, m.pollErrors,
		)
	})
}

// Observe records one status report
func (m *Metrics) Observe(s device.Status) {
	m.rpm.Set(float64(s.RPM))
	m.revolutions.Set(float64(s.Revolutions))
	m.angle.Set(float64(s.Angle))
	m.lag.Set(float64(s.Lag))
	m.required.Set(float64(s.Required))
	m.actual.Set(float64(s.Actual))
	m.limited.Set(boolGauge(s.Limited))
	m.ratio.Set(s.Ratio())
	m.reports.Inc()
}

// PollFailed counts a failed status poll
func (m *Metrics) PollFailed() {
	m.pollErrors.Inc()
}

// SetConfigDrift records whether the device runs a different configuration
func (m *Metrics) SetConfigDrift(drift bool) {
	m.configDrift.Set(boolGauge(drift))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
