package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSet(t *testing.T, handler http.HandlerFunc) *Set {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Options{
		BaseURL:   srv.URL + "/v1",
		Timeout:   2 * time.Second,
		RateLimit: 1000,
		Burst:     1000,
	})
	return NewSet(client, Keys{
		Dashboard: "dash-key",
		Threat:    "threat-key",
		Network:   "net-key",
		Incident:  "incident-key",
		Reports:   "reports-key",
		Chatbot:   "chat-key",
	})
}

func TestWrappers_SendFixedHeaders(t *testing.T) {
	var got http.Header
	var path string
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.Path
		w.Write([]byte(`{"activeThreats": 4}`))
	})

	raw, err := apis.Dashboard.GetOverviewStats(context.Background())
	require.NoError(t, err)

	assert.JSONEq(t, `{"activeThreats": 4}`, string(raw))
	assert.Equal(t, "/v1/dashboard/overview", path)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "Bearer dash-key", got.Get("Authorization"))
	assert.Equal(t, "2024-01-15", got.Get("X-API-Version"))
	assert.Equal(t, "sentinel-ai-webapp", got.Get("X-Client-ID"))
}

func TestWrappers_UseDomainKeys(t *testing.T) {
	var auth string
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	testCases := []struct {
		name string
		call func() error
		key  string
	}{
		{"threats", func() error { _, err := apis.Threats.GetThreatStats(ctx); return err }, "threat-key"},
		{"network", func() error { _, err := apis.Network.GetDeviceList(ctx); return err }, "net-key"},
		{"incidents", func() error { _, err := apis.Incidents.GetIncidents(ctx); return err }, "incident-key"},
		{"reports", func() error { _, err := apis.Reports.GetReportHistory(ctx); return err }, "reports-key"},
		{"analysis uses chatbot key", func() error {
			_, err := apis.Analysis.AnalyzeThreat(ctx, json.RawMessage(`{}`))
			return err
		}, "chat-key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.call())
			assert.Equal(t, "Bearer "+tc.key, auth)
		})
	}
}

func TestWrappers_NonSuccessStatusFailsUniformly(t *testing.T) {
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	})
	ctx := context.Background()

	calls := map[string]func() error{
		"overview":   func() error { _, err := apis.Dashboard.GetOverviewStats(ctx); return err },
		"quarantine": func() error { _, err := apis.Threats.QuarantineThreat(ctx, "t-1"); return err },
		"block ip":   func() error { _, err := apis.Network.BlockIP(ctx, "10.0.0.1"); return err },
		"resolve":    func() error { _, err := apis.Incidents.ResolveIncident(ctx, "i-1"); return err },
		"download":   func() error { _, err := apis.Reports.DownloadReport(ctx, "r-1"); return err },
		"chat":       func() error { _, err := apis.Chatbot.SendMessage(ctx, "hi"); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
			assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
			assert.Contains(t, statusErr.Body, "maintenance")
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Domain: "Dashboard", Status: 503}
	assert.Equal(t, "Dashboard API Error: 503", err.Error())
	assert.Equal(t, 503, err.UpstreamStatus())
}

func TestWrappers_EscapePathSegments(t *testing.T) {
	var rawPath string
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		w.Write([]byte(`{"ok":true}`))
	})

	_, err := apis.Threats.QuarantineThreat(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/v1/threats/a%2Fb%20c/quarantine", rawPath)
}

func TestWrappers_RequestBodies(t *testing.T) {
	var body map[string]any
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = nil
		json.Unmarshal(data, &body)
		w.Write([]byte(`{"ok":true}`))
	})
	ctx := context.Background()

	_, err := apis.Network.BlockIP(ctx, "192.0.2.7")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", body["ip"])

	dr := DateRange{Start: "2024-01-01T00:00:00Z", End: "2024-01-31T00:00:00Z"}
	_, err = apis.Reports.GenerateReport(ctx, "weekly", dr)
	require.NoError(t, err)
	assert.Equal(t, "weekly", body["type"])
	assert.Equal(t, map[string]any{"start": dr.Start, "end": dr.End}, body["dateRange"])

	_, err = apis.Analysis.GenerateAIReport(ctx, "incident", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, "incident", body["reportType"])
	assert.Equal(t, map[string]any{"n": float64(1)}, body["data"])
}

func TestChatbot_SendMessage(t *testing.T) {
	t.Run("message extracted", func(t *testing.T) {
		apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message":"  Hello analyst  "}`))
		})
		reply, err := apis.Chatbot.SendMessage(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "Hello analyst", reply.Message)
	})

	t.Run("empty body yields empty message", func(t *testing.T) {
		apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		reply, err := apis.Chatbot.SendMessage(context.Background(), "hi")
		require.NoError(t, err)
		assert.Empty(t, reply.Message)
		assert.Equal(t, "null", string(reply.Raw))
	})
}

func TestReports_DownloadReport(t *testing.T) {
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})

	dl, err := apis.Reports.DownloadReport(context.Background(), "rep-9")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", dl.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), dl.Data)
}

func TestWrappers_InvalidJSONIsAnError(t *testing.T) {
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := apis.Dashboard.GetSecurityFeed(context.Background())
	assert.Error(t, err)
}

func TestWrappers_ContextCancellationAborts(t *testing.T) {
	release := make(chan struct{})
	apis := newTestSet(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := apis.Network.GetTrafficData(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrappers_BreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Options{
		BaseURL:         srv.URL,
		RateLimit:       1000,
		Burst:           1000,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})
	apis := NewSet(client, Keys{Dashboard: "k"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := apis.Dashboard.GetOverviewStats(ctx)
		require.Error(t, err)
	}

	_, err := apis.Dashboard.GetOverviewStats(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestWrappers_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, RateLimit: 1000, Burst: 1000, BreakerFailures: 1})
	apis := NewSet(client, Keys{})

	for i := 0; i < 3; i++ {
		_, err := apis.Incidents.ResolveIncident(context.Background(), "missing")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.Status)
	}
}

func TestDateRangeFor(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name  string
		start string
	}{
		{RangeLast7Days, "2024-03-24T12:00:00Z"},
		{RangeLast30Days, "2024-03-01T12:00:00Z"},
		{RangeLast90Days, "2024-01-01T12:00:00Z"},
		{"last-decade", "2024-03-01T12:00:00Z"},
		{"", "2024-03-01T12:00:00Z"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dr := DateRangeFor(tc.name, now)
			assert.Equal(t, tc.start, dr.Start)
			assert.Equal(t, "2024-03-31T12:00:00Z", dr.End)
		})
	}
}
