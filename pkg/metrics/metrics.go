// Package metrics exposes Prometheus metrics of the remote.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics are the remote metrics. All methods accept a nil receiver.
type Metrics struct {
	Frames       *prometheus.CounterVec // labels: result
	Touches      *prometheus.CounterVec // labels: action
	Publishes    *prometheus.CounterVec // labels: channel, result
	Heartbeats   prometheus.Counter
	BusState     prometheus.Gauge
	TransportUp  prometheus.Gauge
	StatusUpdate *prometheus.CounterVec // labels: status
}

// New registers and returns the metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touchremote_panel_frames_total",
			Help: "Panel frames by result.",
		}, []string{"result"}),
		Touches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touchremote_touches_total",
			Help: "Touch events by routed action.",
		}, []string{"action"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touchremote_publish_total",
			Help: "Bus publishes by channel and result.",
		}, []string{"channel", "result"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "touchremote_heartbeats_total",
			Help: "Heartbeats published.",
		}),
		BusState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "touchremote_bus_state",
			Help: "Bus link state: 0 disconnected, 1 connecting, 2 connected.",
		}),
		TransportUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "touchremote_transport_up",
			Help: "1 when the network transport is up.",
		}),
		StatusUpdate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touchremote_status_messages_total",
			Help: "Inbound status messages by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.Frames, m.Touches, m.Publishes, m.Heartbeats, m.BusState, m.TransportUp, m.StatusUpdate)
	return m
}

// CountFrame counts a panel frame.
func (m *Metrics) CountFrame(result string) {
	if m != nil {
		m.Frames.WithLabelValues(result).Inc()
	}
}

// CountTouch counts a touch by action tag.
func (m *Metrics) CountTouch(action string) {
	if m != nil {
		m.Touches.WithLabelValues(action).Inc()
	}
}

// CountPublish counts a publish on topic, labelled by its last level.
func (m *Metrics) CountPublish(topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Publishes.WithLabelValues(path.Base(topic), result).Inc()
}

// HeartbeatSent counts a heartbeat.
func (m *Metrics) HeartbeatSent() {
	if m != nil {
		m.Heartbeats.Inc()
	}
}

// SetBusState records the bus link state.
func (m *Metrics) SetBusState(state int) {
	if m != nil {
		m.BusState.Set(float64(state))
	}
}

// SetTransportUp records the transport state.
func (m *Metrics) SetTransportUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.TransportUp.Set(1)
	} else {
		m.TransportUp.Set(0)
	}
}

// CountStatus counts an inbound status, "malformed" for undecodable ones.
func (m *Metrics) CountStatus(status string) {
	if m != nil {
		m.StatusUpdate.WithLabelValues(status).Inc()
	}
}

// Server serves metrics over HTTP as a loop.Runnable.
type Server struct {
	Addr     string
	Registry *prometheus.Registry
}

// Name implements loop.Named.
func (s *Server) Name() string {
	return "metrics"
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(s.Registry))
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("metrics listening on %s", s.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
