package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"sentinel/internal/ai"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/events"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const apiEventSource = "api"

func (s *Server) handleThreatAnalysis(w http.ResponseWriter, r *http.Request) {
	var threat ai.ThreatInput
	if err := decodeBody(w, r, &threat); err != nil {
		s.fail(w, r, "ai", err)
		return
	}
	analysis := s.ai.AnalyzeThreat(r.Context(), threat)
	s.events.Emit(r.Context(), events.ThreatEvent(apiEventSource, analysis))
	apperrors.SendSuccess(w, analysis)
}

func (s *Server) handleNetworkAnalysis(w http.ResponseWriter, r *http.Request) {
	var sample ai.NetworkSample
	if err := decodeBody(w, r, &sample); err != nil {
		s.fail(w, r, "ai", err)
		return
	}
	anomalies := s.ai.DetectNetworkAnomalies(r.Context(), sample)
	for _, anomaly := range anomalies {
		s.events.Emit(r.Context(), events.AnomalyEvent(apiEventSource, anomaly))
	}
	apperrors.SendSuccess(w, anomalies)
}

func (s *Server) handleIncidentResponse(w http.ResponseWriter, r *http.Request) {
	var incident ai.IncidentInput
	if err := decodeBody(w, r, &incident); err != nil {
		s.fail(w, r, "ai", err)
		return
	}
	response := s.ai.GenerateIncidentResponse(r.Context(), incident)
	s.events.Emit(r.Context(), events.IncidentEvent(apiEventSource, response))
	apperrors.SendSuccess(w, response)
}

type reportGenerationRequest struct {
	ReportType string          `json:"reportType" jsonschema:"enum=daily,enum=weekly,enum=monthly,enum=incident"`
	Data       json.RawMessage `json:"data,omitempty" jsonschema:"description=Ignored when building the report"`
}

func (s *Server) handleReportGeneration(w http.ResponseWriter, r *http.Request) {
	var body reportGenerationRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "ai", err)
		return
	}
	if !ai.ValidReportType(body.ReportType) {
		s.fail(w, r, "ai", apperrors.NewValidationError("Unknown report type", map[string]interface{}{
			"reportType": body.ReportType,
			"allowed":    []string{ai.ReportDaily, ai.ReportWeekly, ai.ReportMonthly, ai.ReportIncident},
		}))
		return
	}

	report := s.ai.GenerateAIReport(r.Context(), body.ReportType, body.Data)
	s.events.Emit(r.Context(), events.Event{
		Type:   events.ReportGeneratedEvent,
		Source: apiEventSource,
		Data: map[string]any{
			"reportId":   report.ReportID,
			"reportType": report.ReportType,
		},
	})
	apperrors.SendSuccess(w, report)
}

type chatRequest struct {
	Message string         `json:"message" jsonschema:"minLength=1"`
	Context map[string]any `json:"context,omitempty"`
}

type chatReply struct {
	Message string `json:"message"`
	Source  string `json:"source" jsonschema:"enum=upstream,enum=local"`
}

// handleChatMessage asks the upstream assistant first and answers locally
// when it fails or has nothing to say
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "Chatbot", err)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.fail(w, r, "Chatbot", apperrors.NewValidationError("message is required", nil))
		return
	}

	reply, err := s.api.Chatbot.SendMessage(r.Context(), body.Message)
	if err == nil && reply.Message != "" {
		apperrors.SendSuccess(w, chatReply{Message: reply.Message, Source: "upstream"})
		return
	}
	if err != nil {
		s.logger.Warn("Upstream chatbot failed, answering locally", zap.Error(err))
	}

	apperrors.SendSuccess(w, chatReply{
		Message: s.ai.ProcessChatMessage(r.Context(), body.Message, body.Context),
		Source:  "local",
	})
}

func (s *Server) handleIntelResource(w http.ResponseWriter, r *http.Request) {
	data, err := s.intel.VirusTotal.LookupResource(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, "VirusTotal", err)
		return
	}
	apperrors.SendSuccess(w, data)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleIntelURLScan(w http.ResponseWriter, r *http.Request) {
	var body urlRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "VirusTotal", err)
		return
	}
	data, err := s.intel.VirusTotal.ScanURL(r.Context(), body.URL)
	if err != nil {
		s.fail(w, r, "VirusTotal", err)
		return
	}
	apperrors.SendSuccess(w, data)
}

func (s *Server) handleIntelURLCheck(w http.ResponseWriter, r *http.Request) {
	var body urlRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "Safe Browsing", err)
		return
	}
	data, err := s.intel.SafeBrowsing.CheckURL(r.Context(), body.URL)
	if err != nil {
		s.fail(w, r, "Safe Browsing", err)
		return
	}
	apperrors.SendSuccess(w, data)
}

func (s *Server) handleIntelIP(w http.ResponseWriter, r *http.Request) {
	data, err := s.intel.AbuseIPDB.CheckIP(r.Context(), mux.Vars(r)["ip"])
	if err != nil {
		s.fail(w, r, "AbuseIPDB", err)
		return
	}
	apperrors.SendSuccess(w, data)
}
