package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/api"
	"sentinel/internal/events"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Page names, also used in /api/v1/views/{page}
const (
	PageDashboard = "dashboard"
	PageThreats   = "threats"
	PageNetwork   = "network"
	PageIncidents = "incidents"
)

// DashboardLoadError is the banner shown when every dashboard part failed
const DashboardLoadError = "Failed to load dashboard data"

// ErrDashboardUnavailable is recorded when the fallback values are shown
var ErrDashboardUnavailable = errors.New(DashboardLoadError)

// DashboardView is the dashboard page. A part that failed to load is null.
type DashboardView struct {
	Overview     json.RawMessage `json:"overview"`
	SecurityFeed json.RawMessage `json:"securityFeed"`
	Network      json.RawMessage `json:"network"`
	Banner       string          `json:"banner,omitempty"`
}

// ThreatsView is the threat detection page
type ThreatsView struct {
	Threats  json.RawMessage     `json:"threats"`
	Stats    json.RawMessage     `json:"stats"`
	Analysis []ai.ThreatAnalysis `json:"aiAnalysis"`
	Insights []string            `json:"aiInsights"`
}

// NetworkView is the network monitor page
type NetworkView struct {
	Status    json.RawMessage      `json:"status"`
	Traffic   json.RawMessage      `json:"traffic"`
	Devices   json.RawMessage      `json:"devices"`
	Anomalies []ai.NetworkAnalysis `json:"aiAnomalies"`
	Insights  []string             `json:"aiInsights"`
}

// IncidentsView is the incident response page
type IncidentsView struct {
	Incidents json.RawMessage       `json:"incidents"`
	Responses []ai.IncidentResponse `json:"aiResponses"`
}

var fallbackOverview = json.RawMessage(`{"activeThreats":23,"blockedAttacks":1247,"systemHealth":98.5,"riskScore":"Medium"}`)

var fallbackNetwork = json.RawMessage(`{"status":"Healthy","devices":247,"bandwidth":78}`)

var threatInsights = []string{
	"AI detected 23% increase in sophisticated attack patterns",
	"Machine learning models identified new malware variants",
	"Behavioral analysis shows potential insider threat indicators",
	"Threat correlation engine linked 3 related incidents",
}

var networkInsights = []string{
	"AI detected unusual traffic patterns from 3 sources",
	"Machine learning models identified potential DDoS preparation",
	"Behavioral analysis shows normal network activity",
	"AI correlation engine monitoring 247 active devices",
}

// Sources are the collaborators the page fetchers read from
type Sources struct {
	API    *api.Set
	AI     *ai.Service
	Logger *zap.Logger
}

// RegisterPages installs the four page pollers with their intervals
func RegisterPages(m *Manager, src Sources, dashboard, threats, network, incidents time.Duration) {
	if src.Logger == nil {
		src.Logger = zap.NewNop()
	}
	m.Register(PageDashboard, dashboard, src.FetchDashboard)
	m.Register(PageThreats, threats, src.FetchThreats)
	m.Register(PageNetwork, network, src.FetchNetwork)
	m.Register(PageIncidents, incidents, src.FetchIncidents)
}

// FetchDashboard loads the three dashboard parts independently. A failed
// part becomes null; when all three fail the fallback values are used.
func (s Sources) FetchDashboard(ctx context.Context) (any, []events.Event, error) {
	parts := []func(context.Context) (json.RawMessage, error){
		s.API.Dashboard.GetOverviewStats,
		s.API.Dashboard.GetSecurityFeed,
		s.API.Dashboard.GetNetworkOverview,
	}
	results := make([]json.RawMessage, len(parts))
	errs := make([]error, len(parts))

	var wg sync.WaitGroup
	for i, fetch := range parts {
		i, fetch := i, fetch
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = fetch(ctx)
		}()
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			results[i] = nil
			s.log().Debug("dashboard part failed", zap.Int("part", i), zap.Error(err))
		}
	}

	if failed == len(parts) {
		s.log().Warn("Failed to fetch dashboard data", zap.Error(errors.Join(errs...)))
		return DashboardView{
			Overview:     fallbackOverview,
			SecurityFeed: json.RawMessage(`[]`),
			Network:      fallbackNetwork,
			Banner:       DashboardLoadError,
		}, nil, ErrDashboardUnavailable
	}

	return DashboardView{
		Overview:     results[0],
		SecurityFeed: results[1],
		Network:      results[2],
	}, nil, nil
}

// FetchThreats loads active threats and stats together; either failing fails
// the refresh. Every threat is analysed.
func (s Sources) FetchThreats(ctx context.Context) (any, []events.Event, error) {
	var threats, stats json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		threats, err = s.API.Threats.GetActiveThreats(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats, err = s.API.Threats.GetThreatStats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch threat data: %w", err)
	}

	items := s.decodeList("active threats", threats)

	view := ThreatsView{Threats: threats, Stats: stats, Analysis: []ai.ThreatAnalysis{}, Insights: []string{}}
	var evts []events.Event
	for _, item := range items {
		var input ai.ThreatInput
		if err := json.Unmarshal(item, &input); err != nil {
			s.log().Debug("skipping unreadable threat", zap.Error(err))
			continue
		}
		analysis := s.AI.AnalyzeThreat(ctx, input)
		view.Analysis = append(view.Analysis, analysis)
		evts = append(evts, events.ThreatEvent(PageThreats, analysis))
	}
	if len(items) > 0 {
		view.Insights = append(view.Insights, threatInsights...)
	}
	return view, evts, nil
}

// FetchNetwork loads status, traffic and devices together and runs anomaly
// detection over the traffic sample
func (s Sources) FetchNetwork(ctx context.Context) (any, []events.Event, error) {
	var status, traffic, devices json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		status, err = s.API.Network.GetNetworkStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		traffic, err = s.API.Network.GetTrafficData(gctx)
		return err
	})
	g.Go(func() (err error) {
		devices, err = s.API.Network.GetDeviceList(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch network data: %w", err)
	}

	var sample ai.NetworkSample
	if err := json.Unmarshal(traffic, &sample); err != nil {
		// Non-object traffic payloads carry no detectable pattern.
		s.log().Debug("traffic payload is not an object", zap.Error(err))
		sample = ai.NetworkSample{}
	}

	anomalies := s.AI.DetectNetworkAnomalies(ctx, sample)
	evts := make([]events.Event, 0, len(anomalies))
	for _, anomaly := range anomalies {
		evts = append(evts, events.AnomalyEvent(PageNetwork, anomaly))
	}

	return NetworkView{
		Status:    status,
		Traffic:   traffic,
		Devices:   devices,
		Anomalies: anomalies,
		Insights:  append([]string(nil), networkInsights...),
	}, evts, nil
}

// FetchIncidents loads every incident and plans a response for the active ones
func (s Sources) FetchIncidents(ctx context.Context) (any, []events.Event, error) {
	incidents, err := s.API.Incidents.GetIncidents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch incidents: %w", err)
	}
	items := s.decodeList("incidents", incidents)

	view := IncidentsView{Incidents: incidents, Responses: []ai.IncidentResponse{}}
	var evts []events.Event
	for _, item := range items {
		var input ai.IncidentInput
		if err := json.Unmarshal(item, &input); err != nil {
			s.log().Debug("skipping unreadable incident", zap.Error(err))
			continue
		}
		if !isActive(input.Status) {
			continue
		}
		response := s.AI.GenerateIncidentResponse(ctx, input)
		view.Responses = append(view.Responses, response)
		evts = append(evts, events.IncidentEvent(PageIncidents, response))
	}
	return view, evts, nil
}

func isActive(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "resolved", "closed":
		return false
	default:
		return true
	}
}

// decodeList accepts a JSON array or null. Any other payload is logged and
// read as an empty list so the rest of the page still refreshes.
func (s Sources) decodeList(what string, raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log().Warn("Expected a JSON array, treating as empty",
			zap.String("payload", what),
			zap.Error(err))
		return nil
	}
	return items
}

func (s Sources) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
