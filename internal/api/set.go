package api

// Keys holds the bearer key of each upstream domain
type Keys struct {
	Dashboard string
	Threat    string
	Network   string
	Incident  string
	Reports   string
	Chatbot   string
}

// Set groups one wrapper per upstream domain
type Set struct {
	Dashboard *DashboardAPI
	Threats   *ThreatDetectionAPI
	Network   *NetworkMonitorAPI
	Incidents *IncidentResponseAPI
	Reports   *ReportsAPI
	Chatbot   *ChatbotAPI
	Analysis  *AnalysisAPI
}

// NewSet binds every domain wrapper to the shared client
func NewSet(c *Client, keys Keys) *Set {
	return &Set{
		Dashboard: &DashboardAPI{ep: c.endpoint("Dashboard", keys.Dashboard)},
		Threats:   &ThreatDetectionAPI{ep: c.endpoint("Threat Detection", keys.Threat)},
		Network:   &NetworkMonitorAPI{ep: c.endpoint("Network Monitor", keys.Network)},
		Incidents: &IncidentResponseAPI{ep: c.endpoint("Incident Response", keys.Incident)},
		Reports:   &ReportsAPI{ep: c.endpoint("Reports", keys.Reports)},
		Chatbot:   &ChatbotAPI{ep: c.endpoint("Chatbot", keys.Chatbot)},
		Analysis:  &AnalysisAPI{ep: c.endpoint("AI Analysis", keys.Chatbot)},
	}
}
