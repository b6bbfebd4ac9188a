package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/api"
	"sentinel/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) BroadcastMessage(msgType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msgType)
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(_ context.Context, event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) ofType(t events.EventType) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, event := range e.events {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

// upstream serves canned bodies by path; missing paths answer 503
func upstream(t *testing.T, bodies map[string]string) *Sources {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := api.NewClient(api.Options{
		BaseURL:         srv.URL + "/v1",
		Timeout:         2 * time.Second,
		RateLimit:       1000,
		Burst:           1000,
		BreakerFailures: 1000,
	})
	return &Sources{
		API: api.NewSet(client, api.Keys{}),
		AI:  ai.NewService(),
	}
}

func TestFetchDashboard_PartialFailureLeavesNulls(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/dashboard/overview":      `{"activeThreats":5}`,
		"/v1/dashboard/security-feed": `[{"id":"f1"}]`,
	})
	m := NewManager(ManagerOptions{})
	RegisterPages(m, *src, time.Hour, time.Hour, time.Hour, time.Hour)

	snapshot, err := m.Refresh(context.Background(), PageDashboard)
	require.NoError(t, err)

	view := snapshot.Data.(DashboardView)
	assert.JSONEq(t, `{"activeThreats":5}`, string(view.Overview))
	assert.Nil(t, view.Network)
	assert.Empty(t, view.Banner)
	assert.Empty(t, snapshot.Error)
}

func TestFetchDashboard_TotalFailureUsesFallback(t *testing.T) {
	src := upstream(t, nil)
	emitter := &recordingEmitter{}
	m := NewManager(ManagerOptions{Emitter: emitter})
	RegisterPages(m, *src, time.Hour, time.Hour, time.Hour, time.Hour)

	snapshot, err := m.Refresh(context.Background(), PageDashboard)
	require.ErrorIs(t, err, ErrDashboardUnavailable)

	view := snapshot.Data.(DashboardView)
	assert.Equal(t, DashboardLoadError, view.Banner)
	assert.JSONEq(t, `{"activeThreats":23,"blockedAttacks":1247,"systemHealth":98.5,"riskScore":"Medium"}`, string(view.Overview))
	assert.JSONEq(t, `[]`, string(view.SecurityFeed))
	assert.JSONEq(t, `{"status":"Healthy","devices":247,"bandwidth":78}`, string(view.Network))
	assert.Equal(t, DashboardLoadError, snapshot.Error)
	assert.True(t, snapshot.Ready())
	assert.Len(t, emitter.ofType(events.PollerErrorEvent), 1)
}

func TestFetchThreats_AnalysesEachThreat(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/threats/active": `[{"id":"t1","type":"Ransomware","severity":9,"affectedSystems":["a","b"]},"garbage",{"id":"t2","type":"Phishing"}]`,
		"/v1/threats/stats":  `{"total":2}`,
	})
	emitter := &recordingEmitter{}
	m := NewManager(ManagerOptions{Emitter: emitter})
	RegisterPages(m, *src, time.Hour, time.Hour, time.Hour, time.Hour)

	snapshot, err := m.Refresh(context.Background(), PageThreats)
	require.NoError(t, err)

	view := snapshot.Data.(ThreatsView)
	require.Len(t, view.Analysis, 2)
	assert.Equal(t, "t1", view.Analysis[0].ThreatID)
	assert.Equal(t, "t2", view.Analysis[1].ThreatID)
	assert.Equal(t, threatInsights, view.Insights)
	assert.Len(t, emitter.ofType(events.ThreatAnalysisEvent), 2)
}

func TestFetchThreats_EmptyListHasNoInsights(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/threats/active": `[]`,
		"/v1/threats/stats":  `{}`,
	})
	data, evts, err := src.FetchThreats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, evts)
	assert.Empty(t, data.(ThreatsView).Insights)
}

func TestFetchThreats_NonArrayPayloadIsEmpty(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/threats/active": `{"threats":[{"id":"t1"}]}`,
		"/v1/threats/stats":  `{"total":1}`,
	})
	core, logs := observer.New(zap.WarnLevel)
	src.Logger = zap.New(core)

	data, evts, err := src.FetchThreats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, evts)

	view := data.(ThreatsView)
	assert.Empty(t, view.Analysis)
	assert.Empty(t, view.Insights)
	assert.JSONEq(t, `{"total":1}`, string(view.Stats))
	assert.Equal(t, 1, logs.FilterField(zap.String("payload", "active threats")).Len())
}

func TestFetchThreats_EitherFailureFails(t *testing.T) {
	src := upstream(t, map[string]string{"/v1/threats/active": `[]`})
	data, _, err := src.FetchThreats(context.Background())
	require.Error(t, err)
	assert.Nil(t, data)
}

func TestFetchNetwork_DetectsAnomalies(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/network/status":  `{"status":"Degraded"}`,
		"/v1/network/traffic": `{"trafficIncrease":450,"uniqueSources":2000,"requestPattern":"flood","affectedDevices":["edge-1"]}`,
		"/v1/network/devices": `[]`,
	})
	data, evts, err := src.FetchNetwork(context.Background())
	require.NoError(t, err)

	view := data.(NetworkView)
	require.Len(t, view.Anomalies, 1)
	assert.Equal(t, "DDoS Attack", view.Anomalies[0].AnomalyType)
	assert.Equal(t, []string{"edge-1"}, view.Anomalies[0].AffectedDevices)
	assert.Equal(t, networkInsights, view.Insights)
	require.Len(t, evts, 1)
	assert.Equal(t, events.NetworkAnomalyEvent, evts[0].Type)
}

func TestFetchNetwork_NonObjectTrafficIsQuiet(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/network/status":  `{}`,
		"/v1/network/traffic": `[1,2,3]`,
		"/v1/network/devices": `[]`,
	})
	data, evts, err := src.FetchNetwork(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data.(NetworkView).Anomalies)
	assert.Empty(t, evts)
}

func TestFetchIncidents_OnlyActiveGetResponses(t *testing.T) {
	src := upstream(t, map[string]string{
		"/v1/incidents": `[{"id":"i1","severity":"critical","status":"open"},{"id":"i2","status":"Resolved"},{"id":"i3","status":"closed"},{"id":"i4"}]`,
	})
	data, evts, err := src.FetchIncidents(context.Background())
	require.NoError(t, err)

	view := data.(IncidentsView)
	require.Len(t, view.Responses, 2)
	assert.Equal(t, "i1", view.Responses[0].IncidentID)
	assert.Equal(t, "i4", view.Responses[1].IncidentID)
	assert.Len(t, evts, 2)
}

func TestRefresh_FailureKeepsPreviousData(t *testing.T) {
	fail := false
	m := NewManager(ManagerOptions{})
	m.Register("page", time.Hour, func(context.Context) (any, []events.Event, error) {
		if fail {
			return nil, nil, errors.New("upstream down")
		}
		return "v1", nil, nil
	})

	first, err := m.Refresh(context.Background(), "page")
	require.NoError(t, err)

	fail = true
	second, err := m.Refresh(context.Background(), "page")
	require.Error(t, err)
	assert.Equal(t, "v1", second.Data)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Equal(t, "upstream down", second.Error)
	require.NotNil(t, second.ErrorAt)

	fail = false
	third, err := m.Refresh(context.Background(), "page")
	require.NoError(t, err)
	assert.Empty(t, third.Error)
	assert.Nil(t, third.ErrorAt)
}

func TestRefresh_LastStartedWins(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32

	m := NewManager(ManagerOptions{})
	m.Register("page", time.Hour, func(ctx context.Context) (any, []events.Event, error) {
		if calls.Add(1) == 1 {
			// The first refresh is slow and finishes after the second.
			<-release
			return "stale", nil, nil
		}
		return "fresh", nil, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Refresh(context.Background(), "page")
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	snapshot, err := m.Refresh(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, "fresh", snapshot.Data)

	close(release)
	<-done
	current, _ := m.Snapshot("page")
	assert.Equal(t, "fresh", current.Data)
}

func TestRefresh_BroadcastsAndEmits(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	emitter := &recordingEmitter{}
	m := NewManager(ManagerOptions{Broadcaster: broadcaster, Emitter: emitter})
	m.Register("threats", time.Hour, func(context.Context) (any, []events.Event, error) {
		return "data", []events.Event{{Type: events.ThreatAnalysisEvent}}, nil
	})

	_, err := m.Refresh(context.Background(), "threats")
	require.NoError(t, err)
	assert.Equal(t, []string{"view:threats"}, broadcaster.types())
	assert.Len(t, emitter.ofType(events.ThreatAnalysisEvent), 1)

	replay := m.Replay()
	require.Len(t, replay, 1)
	assert.Equal(t, "view:threats", replay[0].Type)
}

func TestManager_UnknownPage(t *testing.T) {
	m := NewManager(ManagerOptions{})
	_, err := m.Refresh(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownPage)
	_, ok := m.Snapshot("nope")
	assert.False(t, ok)
}

func TestManager_StartStopCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	m := NewManager(ManagerOptions{})
	m.Register("slow", time.Hour, func(ctx context.Context) (any, []events.Event, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, nil, ctx.Err()
	})

	m.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	snapshot, _ := m.Snapshot("slow")
	assert.False(t, snapshot.Ready())
	assert.Empty(t, snapshot.Error)
}

func TestSnapshotJSON(t *testing.T) {
	data, err := json.Marshal(Snapshot{Page: "network", Data: map[string]int{"devices": 3}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"page":"network"`)
	assert.NotContains(t, string(data), `"error"`)
}
