package ai

import (
	"strings"

	"golang.org/x/net/idna"
)

const (
	ddosTrafficIncrease = 300 // percent
	ddosUniqueSources   = 1000
	portScanMinPorts    = 10
	portScanMaxWindow   = 300 // seconds
)

func detectNetworkAnomalies(n NetworkSample) []NetworkAnalysis {
	anomalies := []NetworkAnalysis{}

	if isDDoS(n) {
		anomalies = append(anomalies, NetworkAnalysis{
			AnomalyType:     "DDoS Attack",
			Severity:        SeverityCritical,
			AffectedDevices: affectedDevices(n),
			TrafficPattern:  "Unusual spike in incoming traffic",
			AIInsights:      "AI detected coordinated attack pattern from multiple sources",
			RecommendedResponse: []string{
				"Activate DDoS protection",
				"Block suspicious IP ranges",
				"Increase bandwidth allocation",
				"Notify security team",
			},
		})
	}

	if isPortScan(n) {
		anomalies = append(anomalies, NetworkAnalysis{
			AnomalyType:     "Port Scanning",
			Severity:        SeverityHigh,
			AffectedDevices: affectedDevices(n),
			TrafficPattern:  "Sequential port access attempts",
			AIInsights:      "AI identified reconnaissance activity",
			RecommendedResponse: []string{
				"Block source IP",
				"Monitor for follow-up attacks",
				"Update firewall rules",
				"Log all connection attempts",
			},
		})
	}

	return anomalies
}

func isDDoS(n NetworkSample) bool {
	return n.TrafficIncrease > ddosTrafficIncrease &&
		n.UniqueSources > ddosUniqueSources &&
		n.RequestPattern == "flood"
}

// isPortScan requires a scan duration to be present; a missing one never matches
func isPortScan(n NetworkSample) bool {
	return len(n.PortSequence) > portScanMinPorts &&
		n.ScanDuration != nil && *n.ScanDuration < portScanMaxWindow &&
		n.SourceIP != ""
}

func affectedDevices(n NetworkSample) []string {
	if n.AffectedDevices == nil {
		return []string{"Unknown"}
	}
	return append([]string{}, n.AffectedDevices...)
}

// Result wraps the anomaly in the shared envelope
func (a NetworkAnalysis) Result() AnalysisResult {
	return AnalysisResult{
		Type:            AnalysisNetwork,
		Severity:        a.Severity,
		Confidence:      0.9,
		Description:     a.AnomalyType + ": " + a.AIInsights,
		Recommendations: a.RecommendedResponse,
		Metadata: map[string]any{
			"anomalyType":     a.AnomalyType,
			"affectedDevices": a.AffectedDevices,
			"trafficPattern":  a.TrafficPattern,
		},
	}
}

// normalizeDomain renders a domain IOC in its lowercase ASCII form
func normalizeDomain(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil && ascii != "" {
		return ascii
	}
	return strings.ToLower(domain)
}
