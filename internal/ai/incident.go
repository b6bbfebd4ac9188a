package ai

import (
	"fmt"
)

var baseAutomatedActions = []string{
	"Automated threat containment initiated",
	"Security logs preserved for analysis",
	"Affected systems isolated from network",
	"Backup systems activated",
}

var dataBreachActions = []string{
	"Data access logs analyzed",
	"Compromised credentials revoked",
}

// withIncidentDefaults fills the documented defaults for missing fields
func withIncidentDefaults(i IncidentInput) IncidentInput {
	if i.Severity == "" {
		i.Severity = string(SeverityMedium)
	}
	if i.Type == "" {
		i.Type = "unknown"
	}
	if i.Complexity == "" {
		i.Complexity = "low"
	}
	if i.DataSensitivity == "" {
		i.DataSensitivity = "low"
	}
	if i.EstimatedResponseTime == "" {
		i.EstimatedResponseTime = "immediate"
	}
	return i
}

func generateIncidentResponse(in IncidentInput) IncidentResponse {
	i := withIncidentDefaults(in)

	return IncidentResponse{
		IncidentID:                i.ID,
		AIAssessment:              assessIncident(i),
		AutomatedActions:          automatedActions(i),
		HumanInterventionRequired: i.Severity == string(SeverityCritical) || i.Complexity == "high",
		EstimatedResolutionTime:   estimateResolutionTime(i.Severity),
		PriorityLevel:             priorityLevel(i),
	}
}

func assessIncident(i IncidentInput) string {
	return fmt.Sprintf(
		"AI assessment: This is a %s severity %s incident. The incident has affected %d systems and requires %s attention.",
		i.Severity, i.Type, len(i.AffectedSystems), i.EstimatedResponseTime)
}

func automatedActions(i IncidentInput) []string {
	actions := append([]string(nil), baseAutomatedActions...)
	if i.Type == "data_breach" {
		actions = append(actions, dataBreachActions...)
	}
	return actions
}

func estimateResolutionTime(severity string) string {
	switch Severity(severity) {
	case SeverityCritical:
		return "2-4 hours"
	case SeverityHigh:
		return "4-8 hours"
	case SeverityMedium:
		return "8-24 hours"
	case SeverityLow:
		return "24-48 hours"
	default:
		return "Unknown"
	}
}

func priorityLevel(i IncidentInput) Severity {
	affected := len(i.AffectedSystems)
	switch {
	case i.Severity == string(SeverityCritical) || affected > 10 || i.DataSensitivity == "high":
		return SeverityCritical
	case i.Severity == string(SeverityHigh) || affected > 5:
		return SeverityHigh
	case i.Severity == string(SeverityMedium) || affected > 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Result wraps the response plan in the shared envelope
func (r IncidentResponse) Result() AnalysisResult {
	return AnalysisResult{
		Type:            AnalysisIncident,
		Severity:        r.PriorityLevel,
		Confidence:      0.85,
		Description:     r.AIAssessment,
		Recommendations: r.AutomatedActions,
		Metadata: map[string]any{
			"incidentId":                r.IncidentID,
			"humanInterventionRequired": r.HumanInterventionRequired,
			"estimatedResolutionTime":   r.EstimatedResolutionTime,
		},
	}
}
