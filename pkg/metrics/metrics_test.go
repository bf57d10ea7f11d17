package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.CountFrame("received")
	m.CountFrame("received")
	m.CountTouch("confirm_ranking")
	m.CountPublish("scoshow_x/ranking", nil)
	m.CountPublish("scoshow_x/ranking", errors.New("down"))
	m.HeartbeatSent()
	m.SetBusState(2)
	m.SetTransportUp(true)
	m.CountStatus("online")

	require.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues("received")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Touches.WithLabelValues("confirm_ranking")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues("ranking", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues("ranking", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Heartbeats))
	require.Equal(t, 2.0, testutil.ToFloat64(m.BusState))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TransportUp))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "touchremote_heartbeats_total 1")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.CountFrame("received")
		m.CountTouch("x")
		m.CountPublish("a/b", nil)
		m.HeartbeatSent()
		m.SetBusState(0)
		m.SetTransportUp(false)
		m.CountStatus("online")
	})
}
