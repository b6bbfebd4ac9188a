package api

import (
	"context"
	"encoding/json"
	"strings"
)

// ChatbotAPI relays chat messages to the upstream assistant
type ChatbotAPI struct {
	ep *endpoint
}

type chatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the upstream assistant's answer. Message may be empty.
type ChatReply struct {
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"-"`
}

func (a *ChatbotAPI) SendMessage(ctx context.Context, message string) (*ChatReply, error) {
	raw, err := a.ep.postJSON(ctx, "SendMessage", "/chatbot/message", chatRequest{Message: message})
	if err != nil {
		return nil, err
	}

	reply := &ChatReply{Raw: raw}
	var body struct {
		Message string `json:"message"`
	}
	// A non-object body is still a successful call with no usable message.
	if json.Unmarshal(raw, &body) == nil {
		reply.Message = strings.TrimSpace(body.Message)
	}
	return reply, nil
}

// AnalysisAPI is the remote counterpart of the local heuristic service. It
// authenticates with the chatbot key.
type AnalysisAPI struct {
	ep *endpoint
}

func (a *AnalysisAPI) AnalyzeThreat(ctx context.Context, threat json.RawMessage) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "AnalyzeThreat", "/ai/threat-analysis", threat)
}

func (a *AnalysisAPI) DetectNetworkAnomalies(ctx context.Context, sample json.RawMessage) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "DetectNetworkAnomalies", "/ai/network-analysis", sample)
}

func (a *AnalysisAPI) GenerateIncidentResponse(ctx context.Context, incident json.RawMessage) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "GenerateIncidentResponse", "/ai/incident-response", incident)
}

type aiReportRequest struct {
	ReportType string          `json:"reportType"`
	Data       json.RawMessage `json:"data"`
}

func (a *AnalysisAPI) GenerateAIReport(ctx context.Context, reportType string, data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return a.ep.postJSON(ctx, "GenerateAIReport", "/ai/report-generation", aiReportRequest{
		ReportType: reportType,
		Data:       data,
	})
}
