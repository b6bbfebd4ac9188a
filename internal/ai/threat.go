package ai

import (
	"fmt"
	"strings"
)

type threatRule struct {
	indicator  string
	signature  string
	threatType string
}

// First match wins.
var threatRules = []threatRule{
	{indicator: "ransomware", signature: "encrypt", threatType: "Ransomware"},
	{indicator: "trojan", signature: "backdoor", threatType: "Trojan"},
	{indicator: "phishing", signature: "credential", threatType: "Phishing"},
	{indicator: "ddos", signature: "flood", threatType: "DDoS"},
}

const unknownThreatType = "Unknown Malware"

var baseThreatActions = []string{
	"Isolate affected systems immediately",
	"Preserve evidence for forensic analysis",
	"Update security signatures",
	"Monitor for lateral movement",
}

var ransomwareActions = []string{
	"Disconnect from network immediately",
	"Check for encrypted files",
	"Contact incident response team",
}

var phishingActions = []string{
	"Reset affected user credentials",
	"Enable multi-factor authentication",
	"Conduct security awareness training",
}

func analyzeThreat(t ThreatInput) ThreatAnalysis {
	threatType := determineThreatType(t)
	score := riskScore(t)

	return ThreatAnalysis{
		ThreatID:                 t.ID,
		ThreatType:               threatType,
		RiskScore:                score,
		AIAnalysis:               threatNarrative(t, threatType, score),
		RecommendedActions:       threatRecommendations(t),
		FalsePositiveProbability: falsePositiveProbability(t),
		RelatedThreats:           relatedThreats(t),
		IOCIndicators:            iocIndicators(t),
	}
}

// determineThreatType matches whole list elements, ignoring case
func determineThreatType(t ThreatInput) string {
	for _, rule := range threatRules {
		if containsFold(t.Indicators, rule.indicator) || containsFold(t.Signatures, rule.signature) {
			return rule.threatType
		}
	}
	return unknownThreatType
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), want) {
			return true
		}
	}
	return false
}

// riskScore is non-decreasing in severity and affected systems and always in [0,100]
func riskScore(t ThreatInput) int {
	score := t.Severity*20 + float64(len(t.AffectedSystems))*5

	switch strings.ToLower(t.DataSensitivity) {
	case "high":
		score += 30
	case "medium":
		score += 15
	}

	switch strings.ToLower(t.PropagationSpeed) {
	case "fast":
		score += 25
	case "medium":
		score += 15
	}

	if score != score || score < 0 { // NaN or negative
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

func threatNarrative(t ThreatInput, threatType string, score int) string {
	characteristics := "suspicious behavior patterns"
	if len(t.Indicators) > 0 {
		characteristics = strings.Join(t.Indicators, ", ")
	}
	return fmt.Sprintf(
		"AI analysis indicates this is a %s threat with a risk score of %d/100. "+
			"The threat exhibits characteristics typical of %s attacks, including %s. "+
			"Immediate containment is recommended.",
		threatType, score, strings.ToLower(threatType), characteristics)
}

// threatRecommendations keys off the upstream type field, not the derived threat type
func threatRecommendations(t ThreatInput) []string {
	actions := append([]string(nil), baseThreatActions...)
	switch strings.ToLower(t.Type) {
	case "ransomware":
		actions = append(actions, ransomwareActions...)
	case "phishing":
		actions = append(actions, phishingActions...)
	}
	return actions
}

func falsePositiveProbability(t ThreatInput) float64 {
	p := 0.10
	if len(t.Indicators) > 3 {
		p -= 0.05
	}
	if len(t.Signatures) > 2 {
		p -= 0.03
	}
	if t.BehaviorScore > 80 {
		p -= 0.02
	}
	// Rounded to hundredths to avoid 0.0999999 style artifacts.
	p = float64(int(p*100+0.5)) / 100
	if p < 0.01 {
		return 0.01
	}
	return p
}

func relatedThreats(t ThreatInput) []string {
	related := []string{}
	if t.SourceIP != "" {
		related = append(related, "Previous threats from "+t.SourceIP)
	}
	if t.Signatures != nil {
		related = append(related, "Similar signature patterns detected")
	}
	if t.TargetSystem != "" {
		related = append(related, "Previous attacks on "+t.TargetSystem)
	}
	return related
}

func iocIndicators(t ThreatInput) []string {
	iocs := []string{}
	if t.SourceIP != "" {
		iocs = append(iocs, "IP: "+t.SourceIP)
	}
	if t.Domain != "" {
		iocs = append(iocs, "Domain: "+normalizeDomain(t.Domain))
	}
	if t.FileHash != "" {
		iocs = append(iocs, "File Hash: "+t.FileHash)
	}
	if t.UserAgent != "" {
		iocs = append(iocs, "User Agent: "+t.UserAgent)
	}
	return iocs
}

// Result wraps the analysis in the shared envelope
func (a ThreatAnalysis) Result() AnalysisResult {
	return AnalysisResult{
		Type:            AnalysisThreat,
		Severity:        SeverityForScore(a.RiskScore),
		Confidence:      1 - a.FalsePositiveProbability,
		Description:     a.AIAnalysis,
		Recommendations: a.RecommendedActions,
		Metadata: map[string]any{
			"threatId":   a.ThreatID,
			"threatType": a.ThreatType,
			"riskScore":  a.RiskScore,
		},
	}
}
