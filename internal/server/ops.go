package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"sentinel/internal/ai"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/events"
	"sentinel/internal/poller"

	"github.com/gorilla/mux"
	"github.com/invopop/jsonschema"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

func (s *Server) handleListViews(w http.ResponseWriter, _ *http.Request) {
	views := make([]poller.Snapshot, 0)
	for _, page := range s.pollers.Pages() {
		if snapshot, ok := s.pollers.Snapshot(page); ok {
			views = append(views, snapshot)
		}
	}
	apperrors.SendSuccess(w, views)
}

// handleGetView returns the latest snapshot of a page. A page that has not
// been fetched yet answers 503 so clients can retry.
func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	page := mux.Vars(r)["page"]
	snapshot, ok := s.pollers.Snapshot(page)
	if !ok {
		s.fail(w, r, "views", apperrors.NewNotFoundError("view "+page))
		return
	}
	if !snapshot.Ready() {
		s.fail(w, r, "views", apperrors.NewAppError(apperrors.ErrorTypeUnavailable,
			"VIEW_NOT_READY", "View has not been loaded yet", nil))
		return
	}
	apperrors.SendSuccess(w, snapshot)
}

// handleRefreshView runs one fetch now. A failed fetch still returns the
// stored snapshot with its error recorded.
func (s *Server) handleRefreshView(w http.ResponseWriter, r *http.Request) {
	page := mux.Vars(r)["page"]
	snapshot, err := s.pollers.Refresh(r.Context(), page)
	if errors.Is(err, poller.ErrUnknownPage) {
		s.fail(w, r, "views", apperrors.NewNotFoundError("view "+page))
		return
	}
	if err != nil && !snapshot.Ready() {
		s.fail(w, r, "views", err)
		return
	}
	apperrors.SendSuccess(w, snapshot)
}

// handleGetAlerts returns all alerts, or only unresolved ones with ?active=true
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		apperrors.SendSuccess(w, map[string]interface{}{"alerts": []events.Alert{}, "total": 0})
		return
	}
	var alerts []events.Alert
	if r.URL.Query().Get("active") == "true" {
		alerts = s.alerts.GetActiveAlerts()
	} else {
		alerts = s.alerts.GetAlerts()
	}
	if alerts == nil {
		alerts = []events.Alert{}
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// handleResolveAlert resolves a specific alert
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]
	if s.alerts == nil || !s.alerts.ResolveAlert(alertID) {
		s.fail(w, r, "alerts", apperrors.NewNotFoundError("alert"))
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"id":       alertID,
		"resolved": true,
	})
}

// handleClearResolvedAlerts clears all resolved alerts
func (s *Server) handleClearResolvedAlerts(w http.ResponseWriter, _ *http.Request) {
	cleared := 0
	if s.alerts != nil {
		cleared = s.alerts.ClearResolved()
	}
	apperrors.SendSuccess(w, map[string]interface{}{"cleared": cleared})
}

// handleSystemMetrics reports host resource usage
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := collectSystemMetrics(ctx)
	if err != nil {
		s.fail(w, r, "system", apperrors.NewInternalError("Failed to collect system metrics", err))
		return
	}
	stats["websocketClients"] = s.ws.GetConnectionCount()
	apperrors.SendSuccess(w, stats)
}

// collectSystemMetrics collects system metrics using gopsutil. CPU, memory
// and disk are required; the rest is best effort.
func collectSystemMetrics(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"timestamp":  time.Now(),
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	stats["cpu"] = 0.0
	if len(cpuPercent) > 0 {
		stats["cpu"] = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	stats["memory"] = memInfo.UsedPercent

	diskInfo, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, err
	}
	stats["disk"] = diskInfo.UsedPercent

	stats["network"] = map[string]interface{}{"in": uint64(0), "out": uint64(0)}
	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		stats["network"] = map[string]interface{}{
			"in":  counters[0].BytesRecv,
			"out": counters[0].BytesSent,
		}
	}

	stats["processes"] = 0
	if pids, err := process.PidsWithContext(ctx); err == nil {
		stats["processes"] = len(pids)
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		stats["hostUptimeSeconds"] = uptime
	}
	return stats, nil
}

// apiSchemas documents the heuristic endpoints' request and response bodies
var apiSchemas = map[string]struct {
	request  any
	response any
}{
	"/api/v1/ai/threat-analysis":   {&ai.ThreatInput{}, &ai.ThreatAnalysis{}},
	"/api/v1/ai/network-analysis":  {&ai.NetworkSample{}, &[]ai.NetworkAnalysis{}},
	"/api/v1/ai/incident-response": {&ai.IncidentInput{}, &ai.IncidentResponse{}},
	"/api/v1/ai/report-generation": {&reportGenerationRequest{}, &ai.Report{}},
	"/api/v1/chatbot/message":      {&chatRequest{}, &chatReply{}},
}

// handleAPIDocs returns JSON schemas for the heuristic endpoints
func (s *Server) handleAPIDocs(w http.ResponseWriter, _ *http.Request) {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	endpoints := make(map[string]interface{}, len(apiSchemas))
	for path, schemas := range apiSchemas {
		endpoints[path] = map[string]interface{}{
			"request":  reflector.Reflect(schemas.request),
			"response": reflector.Reflect(schemas.response),
		}
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"version":   "1.0.0",
		"endpoints": endpoints,
	})
}
