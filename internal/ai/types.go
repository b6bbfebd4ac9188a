package ai

import (
	"time"
)

// Severity is the shared low..critical scale used by analyses, alerts and priorities
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// SeverityForScore buckets a 0-100 risk score
func SeverityForScore(score int) Severity {
	switch {
	case score >= 75:
		return SeverityCritical
	case score >= 50:
		return SeverityHigh
	case score >= 25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AnalysisType names the producer of an AnalysisResult
type AnalysisType string

const (
	AnalysisThreat   AnalysisType = "threat"
	AnalysisNetwork  AnalysisType = "network"
	AnalysisIncident AnalysisType = "incident"
	AnalysisReport   AnalysisType = "report"
)

// AnalysisResult is the common envelope used for events and alerts
type AnalysisResult struct {
	ID              string         `json:"id"`
	Type            AnalysisType   `json:"type"`
	Severity        Severity       `json:"severity"`
	Confidence      float64        `json:"confidence"`
	Description     string         `json:"description"`
	Recommendations []string       `json:"recommendations"`
	Timestamp       time.Time      `json:"timestamp"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ThreatInput is a loosely typed threat record. Every field is optional.
type ThreatInput struct {
	ID               string   `json:"id,omitempty"`
	Type             string   `json:"type,omitempty" jsonschema:"description=Upstream threat category such as ransomware or phishing"`
	Indicators       []string `json:"indicators,omitempty"`
	Signatures       []string `json:"signatures" jsonschema:"description=Presence of this field (even empty) counts as a signature correlation"`
	Severity         float64  `json:"severity,omitempty" jsonschema:"description=Numeric severity; each point adds 20 to the risk score"`
	AffectedSystems  []string `json:"affectedSystems,omitempty"`
	DataSensitivity  string   `json:"dataSensitivity,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
	PropagationSpeed string   `json:"propagationSpeed,omitempty" jsonschema:"enum=slow,enum=medium,enum=fast"`
	BehaviorScore    float64  `json:"behaviorScore,omitempty"`
	SourceIP         string   `json:"sourceIP,omitempty"`
	TargetSystem     string   `json:"targetSystem,omitempty"`
	Domain           string   `json:"domain,omitempty"`
	FileHash         string   `json:"fileHash,omitempty"`
	UserAgent        string   `json:"userAgent,omitempty"`
}

// ThreatAnalysis is the heuristic verdict on one threat
type ThreatAnalysis struct {
	ThreatID                 string   `json:"threatId"`
	ThreatType               string   `json:"threatType"`
	RiskScore                int      `json:"riskScore"`
	AIAnalysis               string   `json:"aiAnalysis"`
	RecommendedActions       []string `json:"recommendedActions"`
	FalsePositiveProbability float64  `json:"falsePositiveProbability"`
	RelatedThreats           []string `json:"relatedThreats"`
	IOCIndicators            []string `json:"iocIndicators"`
}

// NetworkSample is a loosely typed traffic summary. Every field is optional.
type NetworkSample struct {
	TrafficIncrease float64  `json:"trafficIncrease,omitempty" jsonschema:"description=Traffic increase in percent"`
	UniqueSources   float64  `json:"uniqueSources,omitempty"`
	RequestPattern  string   `json:"requestPattern,omitempty"`
	PortSequence    []int    `json:"portSequence,omitempty"`
	ScanDuration    *float64 `json:"scanDuration,omitempty" jsonschema:"description=Scan window in seconds"`
	SourceIP        string   `json:"sourceIP,omitempty"`
	AffectedDevices []string `json:"affectedDevices"`
}

// NetworkAnalysis describes one detected anomaly
type NetworkAnalysis struct {
	AnomalyType         string   `json:"anomalyType"`
	Severity            Severity `json:"severity"`
	AffectedDevices     []string `json:"affectedDevices"`
	TrafficPattern      string   `json:"trafficPattern"`
	AIInsights          string   `json:"aiInsights"`
	RecommendedResponse []string `json:"recommendedResponse"`
}

// IncidentInput is a loosely typed incident record. Every field is optional.
type IncidentInput struct {
	ID                    string   `json:"id,omitempty"`
	Severity              string   `json:"severity,omitempty" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
	Type                  string   `json:"type,omitempty"`
	Complexity            string   `json:"complexity,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
	DataSensitivity       string   `json:"dataSensitivity,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
	AffectedSystems       []string `json:"affectedSystems,omitempty"`
	EstimatedResponseTime string   `json:"estimatedResponseTime,omitempty"`
	Status                string   `json:"status,omitempty"`
}

// IncidentResponse is the heuristic response plan for one incident
type IncidentResponse struct {
	IncidentID                string   `json:"incidentId"`
	AIAssessment              string   `json:"aiAssessment"`
	AutomatedActions          []string `json:"automatedActions"`
	HumanInterventionRequired bool     `json:"humanInterventionRequired"`
	EstimatedResolutionTime   string   `json:"estimatedResolutionTime"`
	PriorityLevel             Severity `json:"priorityLevel"`
}

// Report types accepted by GenerateAIReport
const (
	ReportDaily    = "daily"
	ReportWeekly   = "weekly"
	ReportMonthly  = "monthly"
	ReportIncident = "incident"
)

// ValidReportType reports whether t is one of the known report types
func ValidReportType(t string) bool {
	switch t {
	case ReportDaily, ReportWeekly, ReportMonthly, ReportIncident:
		return true
	}
	return false
}

// Report is a generated security report
type Report struct {
	ReportID            string   `json:"reportId"`
	ReportType          string   `json:"reportType"`
	AIGeneratedInsights []string `json:"aiGeneratedInsights"`
	Trends              []string `json:"trends"`
	Recommendations     []string `json:"recommendations"`
	RiskAssessment      string   `json:"riskAssessment"`
}
