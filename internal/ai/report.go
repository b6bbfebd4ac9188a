package ai

import (
	"fmt"
	"time"
)

var reportInsights = []string{
	"AI detected 23% increase in suspicious network activity",
	"Threat intelligence indicates new malware variants in circulation",
	"User behavior analysis shows potential insider threat indicators",
	"Network segmentation effectiveness improved by 15%",
}

var reportTrends = []string{
	"Rising trend in phishing attacks targeting executives",
	"Decreasing false positive rate in threat detection",
	"Improving response times for critical incidents",
	"Increasing adoption of multi-factor authentication",
}

var reportRecommendations = []string{
	"Implement additional network segmentation for critical systems",
	"Enhance user security awareness training program",
	"Deploy advanced endpoint detection and response (EDR)",
	"Conduct regular penetration testing and vulnerability assessments",
}

const reportRiskAssessment = "Overall risk assessment: MEDIUM. While several high-severity threats were detected, " +
	"the security posture remains strong with effective containment and response capabilities."

// generateReport ignores the supplied data; report content is static
func generateReport(reportType string, now time.Time) Report {
	return Report{
		ReportID:            fmt.Sprintf("report_%d", now.UnixMilli()),
		ReportType:          reportType,
		AIGeneratedInsights: append([]string(nil), reportInsights...),
		Trends:              append([]string(nil), reportTrends...),
		Recommendations:     append([]string(nil), reportRecommendations...),
		RiskAssessment:      reportRiskAssessment,
	}
}

// Result wraps the report in the shared envelope
func (r Report) Result() AnalysisResult {
	return AnalysisResult{
		Type:            AnalysisReport,
		Severity:        SeverityMedium,
		Confidence:      0.8,
		Description:     r.RiskAssessment,
		Recommendations: r.Recommendations,
		Metadata: map[string]any{
			"reportId":   r.ReportID,
			"reportType": r.ReportType,
		},
	}
}
