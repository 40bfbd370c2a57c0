// Package monitor bridges the controller to the shop floor: websocket
// clients, Prometheus and NATS all see every status report.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"leadscrew/host/device"
)

const (
	DefaultInterval    = 250 * time.Millisecond
	fingerprintRecheck = 30 * time.Second
)

// Source is where reports come from. Polled reports are delivered through
// the OnStatus callback like pushed ones.
type Source interface {
	Status() (device.Status, error)
	OnStatus(fn func(device.Status))
	Config() (device.ConfigState, error)
	FinalizeConfig(crc uint32) error
}

var _ Source = (*device.Client)(nil)

// Options configures a monitor
type Options struct {
	Interval    time.Duration
	Fingerprint uint32 // expected configuration CRC; zero skips the check
	Publisher   Publisher
	Subject     string
	Logger      *log.Entry
}

// Report is the JSON document sent to websocket clients and NATS
type Report struct {
	Time   time.Time     `json:"time"`
	Status device.Status `json:"status"`
}

// Monitor polls a source and fans reports out
type Monitor struct {
	src         Source
	hub         *Hub
	metrics     *Metrics
	pub         Publisher
	subject     string
	interval    time.Duration
	fingerprint uint32
	log         *log.Entry
	now         func() time.Time
}

// New wires a monitor. hub, metrics and opts.Publisher may be nil.
func New(src Source, hub *Hub, metrics *Metrics, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Subject == "" {
		opts.Subject = StatusSubject
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	return &Monitor{
		src:         src,
		hub:         hub,
		metrics:     metrics,
		pub:         opts.Publisher,
		subject:     opts.Subject,
		interval:    opts.Interval,
		fingerprint: opts.Fingerprint,
		log:         opts.Logger,
		now:         time.Now,
	}
}

// Run polls until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	m.src.OnStatus(m.handle)
	defer m.src.OnStatus(nil)

	if _, err := m.CheckFingerprint(); err != nil {
		m.log.WithError(err).Warn("fingerprint check failed")
	}

	poll := time.NewTicker(m.interval)
	defer poll.Stop()
	recheck := time.NewTicker(fingerprintRecheck)
	defer recheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			m.Poll()
		case <-recheck.C:
			if _, err := m.CheckFingerprint(); err != nil {
				m.log.WithError(err).Warn("fingerprint check failed")
			}
		}
	}
}

// Poll asks for one report; the answer arrives through handle
func (m *Monitor) Poll() {
	if _, err := m.src.Status(); err != nil {
		if m.metrics != nil {
			m.metrics.PollFailed()
		}
		m.log.WithError(err).Warn("status poll failed")
	}
}

// handle fans one report out
func (m *Monitor) handle(s device.Status) {
	if m.metrics != nil {
		m.metrics.Observe(s)
	}

	data, err := json.Marshal(Report{Time: m.now().UTC(), Status: s})
	if err != nil {
		m.log.WithError(err).Error("encode report")
		return
	}
	if m.hub != nil {
		m.hub.Broadcast(data)
	}
	if m.pub != nil {
		if err := m.pub.Publish(m.subject, data); err != nil {
			m.log.WithError(err).WithField("subject", m.subject).Warn("publish failed")
		}
	}
}

// CheckFingerprint compares the device's configuration CRC with the
// expected one. A device that has none yet gets ours. It reports whether
// the two differ.
func (m *Monitor) CheckFingerprint() (bool, error) {
	if m.fingerprint == 0 {
		return false, nil
	}
	state, err := m.src.Config()
	if err != nil {
		return false, err
	}

	drift := false
	switch {
	case !state.Configured:
		if err := m.src.FinalizeConfig(m.fingerprint); err != nil {
			return false, err
		}
		m.log.WithField("crc", m.fingerprint).Info("device configuration recorded")
	case state.CRC != m.fingerprint:
		drift = true
		m.log.WithFields(log.Fields{
			"device": state.CRC,
			"host":   m.fingerprint,
		}).Warn("device runs a different configuration")
	}
	if state.Shutdown {
		m.log.Warn("device is shut down")
	}
	if m.metrics != nil {
		m.metrics.SetConfigDrift(drift)
	}
	return drift, nil
}

// Handler serves /ws, /status, /metrics and /health
func (m *Monitor) Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	if m.hub != nil {
		mux.Handle("/ws", m.hub)
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			last := m.hub.Last()
			if last == nil {
				http.Error(w, "no status yet", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(last)
		})
	}
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK\n"))
	})
	return mux
}
