package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// IncidentResponseAPI serves the incidents page
type IncidentResponseAPI struct {
	ep *endpoint
}

func (a *IncidentResponseAPI) GetActiveIncidents(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetActiveIncidents", "/incidents/active")
}

// CreateIncident forwards the caller's incident document unchanged
func (a *IncidentResponseAPI) CreateIncident(ctx context.Context, incident json.RawMessage) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "CreateIncident", "/incidents", incident)
}

func (a *IncidentResponseAPI) GetIncidents(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetIncidents", "/incidents")
}

func (a *IncidentResponseAPI) ResolveIncident(ctx context.Context, incidentID string) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "ResolveIncident", "/incidents/"+segment(incidentID)+"/resolve", nil)
}

// ReportsAPI serves the reports page
type ReportsAPI struct {
	ep *endpoint
}

// DateRange is the inclusive reporting window sent to the upstream
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Named ranges offered by the reports page
const (
	RangeLast7Days  = "last-7-days"
	RangeLast30Days = "last-30-days"
	RangeLast90Days = "last-90-days"
)

// DateRangeFor resolves a named range ending at now. Unknown names fall back
// to the last 30 days.
func DateRangeFor(name string, now time.Time) DateRange {
	days := 30
	switch name {
	case RangeLast7Days:
		days = 7
	case RangeLast90Days:
		days = 90
	}
	now = now.UTC()
	return DateRange{
		Start: now.AddDate(0, 0, -days).Format(time.RFC3339),
		End:   now.Format(time.RFC3339),
	}
}

type generateReportRequest struct {
	Type      string    `json:"type"`
	DateRange DateRange `json:"dateRange"`
}

// Download is a binary report body
type Download struct {
	Data        []byte
	ContentType string
}

func (a *ReportsAPI) GetSecurityReports(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetSecurityReports", "/reports/security")
}

func (a *ReportsAPI) GenerateReport(ctx context.Context, reportType string, dateRange DateRange) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "GenerateReport", "/reports/generate", generateReportRequest{
		Type:      reportType,
		DateRange: dateRange,
	})
}

func (a *ReportsAPI) GetReportHistory(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetReportHistory", "/reports/history")
}

// DownloadReport returns the raw report file
func (a *ReportsAPI) DownloadReport(ctx context.Context, reportID string) (*Download, error) {
	resp, err := a.ep.do(ctx, "DownloadReport", http.MethodGet, "/reports/download/"+segment(reportID), nil)
	if err != nil {
		return nil, err
	}
	contentType := resp.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Download{Data: resp.body, ContentType: contentType}, nil
}
