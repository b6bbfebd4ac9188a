package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/api"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/intel"

	"github.com/gorilla/mux"
)

// proxy relays an upstream read or action without a body
func (s *Server) proxy(domain string, call func(context.Context) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := call(r.Context())
		if err != nil {
			s.fail(w, r, domain, err)
			return
		}
		apperrors.SendSuccess(w, data)
	}
}

// proxyWithID relays an upstream action on the {id} path variable
func (s *Server) proxyWithID(domain string, call func(context.Context, string) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(mux.Vars(r)["id"])
		if id == "" {
			s.fail(w, r, domain, apperrors.NewValidationError("id is required", nil))
			return
		}
		data, err := call(r.Context(), id)
		if err != nil {
			s.fail(w, r, domain, err)
			return
		}
		apperrors.SendSuccess(w, data)
	}
}

// proxyBody relays the caller's JSON body to an upstream action
func (s *Server) proxyBody(domain string, call func(context.Context, json.RawMessage) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if err := decodeBody(w, r, &body); err != nil {
			s.fail(w, r, domain, err)
			return
		}
		data, err := call(r.Context(), body)
		if err != nil {
			s.fail(w, r, domain, err)
			return
		}
		apperrors.SendSuccess(w, data)
	}
}

// handleRemoteReport asks the upstream AI service for a report. Report types
// are checked here so bad input never costs an upstream call.
func (s *Server) handleRemoteReport(w http.ResponseWriter, r *http.Request) {
	var body reportGenerationRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "AI Analysis", err)
		return
	}
	if !ai.ValidReportType(body.ReportType) {
		s.fail(w, r, "AI Analysis", apperrors.NewValidationError("Unknown report type", map[string]interface{}{
			"reportType": body.ReportType,
		}))
		return
	}
	data, err := s.api.Analysis.GenerateAIReport(r.Context(), body.ReportType, body.Data)
	if err != nil {
		s.fail(w, r, "AI Analysis", err)
		return
	}
	apperrors.SendSuccess(w, data)
}

func (s *Server) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "Network Monitor", err)
		return
	}
	addr, err := intel.ParseIP(body.IP)
	if err != nil {
		s.fail(w, r, "Network Monitor", err)
		return
	}
	data, err := s.api.Network.BlockIP(r.Context(), addr.String())
	if err != nil {
		s.fail(w, r, "Network Monitor", err)
		return
	}
	apperrors.SendSuccess(w, data)
}

// handleCreateIncident forwards the caller's document untouched
func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var incident json.RawMessage
	if err := decodeBody(w, r, &incident); err != nil {
		s.fail(w, r, "Incident Response", err)
		return
	}
	data, err := s.api.Incidents.CreateIncident(r.Context(), incident)
	if err != nil {
		s.fail(w, r, "Incident Response", err)
		return
	}
	apperrors.SendSuccessWithStatus(w, http.StatusCreated, data)
}

// handleGenerateReport accepts either a named range or explicit bounds
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type      string         `json:"type"`
		Range     string         `json:"range"`
		DateRange *api.DateRange `json:"dateRange"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "Reports", err)
		return
	}
	if strings.TrimSpace(body.Type) == "" {
		s.fail(w, r, "Reports", apperrors.NewValidationError("type is required", nil))
		return
	}

	dateRange := api.DateRangeFor(body.Range, time.Now())
	if body.DateRange != nil && body.DateRange.Start != "" && body.DateRange.End != "" {
		dateRange = *body.DateRange
	}

	data, err := s.api.Reports.GenerateReport(r.Context(), body.Type, dateRange)
	if err != nil {
		s.fail(w, r, "Reports", err)
		return
	}
	apperrors.SendSuccess(w, data)
}

// handleDownloadReport streams the upstream file as an attachment
func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	download, err := s.api.Reports.DownloadReport(r.Context(), id)
	if err != nil {
		s.fail(w, r, "Reports", err)
		return
	}
	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(download.Data)))
	w.Header().Set("Content-Disposition", "attachment; filename=\"security-report-"+sanitizeFilename(id)+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Data)
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
