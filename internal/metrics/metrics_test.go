package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.ObserveUpstream("dashboard", "GetOverviewStats", "success", 10*time.Millisecond)
	c.ObserveUpstream("dashboard", "GetOverviewStats", "error", 10*time.Millisecond)
	c.PollerRun("threats", nil)
	c.PollerRun("threats", errors.New("down"))
	c.PollerRun("threats", errors.New("down"))
	c.AlertRaised("high_risk_threat", "critical")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamRequestsTotal.WithLabelValues("dashboard", "GetOverviewStats", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.pollerRunsTotal.WithLabelValues("threats", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsTotal.WithLabelValues("high_risk_threat", "critical")))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)
		c.SetWebsocketClients(3)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.SetWebsocketClients(2)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sentinel_websocket_clients 2")
}
