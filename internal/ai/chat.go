package ai

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Intent identifies what a chat message is about
type Intent string

const (
	IntentThreatAnalysis    Intent = "threat_analysis"
	IntentNetworkMonitoring Intent = "network_monitoring"
	IntentIncidentResponse  Intent = "incident_response"
	IntentReporting         Intent = "reporting"
	IntentBestPractices     Intent = "best_practices"
	IntentGeneralHelp       Intent = "general_help"
)

// ApologyMessage is returned when a chat reply cannot be produced at all
const ApologyMessage = "I apologize, but I'm experiencing technical difficulties. Please try again or contact support."

type intentRule struct {
	keywords []string
	response string
}

// intentTable is evaluated in insertion order; the first rule with a
// matching keyword wins.
var intentTable = buildIntentTable()

func buildIntentTable() *orderedmap.OrderedMap[Intent, intentRule] {
	table := orderedmap.New[Intent, intentRule]()
	table.Set(IntentThreatAnalysis, intentRule{
		keywords: []string{"threat", "malware", "virus"},
		response: threatChatResponse,
	})
	table.Set(IntentNetworkMonitoring, intentRule{
		keywords: []string{"network", "traffic"},
		response: networkChatResponse,
	})
	table.Set(IntentIncidentResponse, intentRule{
		keywords: []string{"incident", "response", "breach"},
		response: incidentChatResponse,
	})
	table.Set(IntentReporting, intentRule{
		keywords: []string{"report", "analysis"},
		response: reportingChatResponse,
	})
	table.Set(IntentBestPractices, intentRule{
		keywords: []string{"best practices", "security", "protection"},
		response: bestPracticesChatResponse,
	})
	table.Set(IntentGeneralHelp, intentRule{
		keywords: []string{"help", "assist", "support"},
		response: generalChatResponse,
	})
	return table
}

// ClassifyIntent picks the first intent whose keyword appears in message
func ClassifyIntent(message string) Intent {
	lower := strings.ToLower(message)
	for pair := intentTable.Oldest(); pair != nil; pair = pair.Next() {
		for _, keyword := range pair.Value.keywords {
			if strings.Contains(lower, keyword) {
				return pair.Key
			}
		}
	}
	return IntentGeneralHelp
}

// templateResponse returns the canned reply for an intent
func templateResponse(intent Intent) string {
	if rule, ok := intentTable.Get(intent); ok {
		return rule.response
	}
	return generalChatResponse
}

const threatChatResponse = `🛡️ **AI Threat Analysis Response:**

Based on your query about threats, here's what Sentinel AI recommends:

**Immediate Actions:**
- Run comprehensive threat scan across all systems
- Check for indicators of compromise (IOCs)
- Review recent security logs for anomalies

**AI-Enhanced Detection:**
- Our AI has identified potential threat patterns
- Machine learning models are analyzing behavior
- Real-time threat intelligence is being updated

**Next Steps:**
- Isolate any suspicious systems
- Preserve evidence for forensic analysis
- Update security signatures and rules

Would you like me to provide specific guidance for a particular type of threat?`

const networkChatResponse = `🌐 **AI Network Monitoring Response:**

Sentinel AI is actively monitoring your network and has detected:

**Current Status:**
- Network health: 99.8% uptime
- Traffic analysis: Normal patterns detected
- Security posture: Strong

**AI Insights:**
- Machine learning models are analyzing traffic patterns
- Anomaly detection is active
- Threat correlation is running in real-time

**Recommendations:**
- Continue monitoring for unusual activity
- Review network segmentation effectiveness
- Update firewall rules as needed

Need specific network analysis or traffic monitoring assistance?`

const incidentChatResponse = `🚨 **AI Incident Response Guidance:**

Sentinel AI is ready to assist with incident response:

**Automated Response Actions:**
- Threat containment protocols activated
- Evidence preservation initiated
- Communication channels established

**AI-Powered Analysis:**
- Incident classification in progress
- Impact assessment being calculated
- Response timeline estimated

**Human Intervention Points:**
- Critical decisions requiring human oversight
- Stakeholder communication coordination
- Legal and compliance considerations

Would you like me to guide you through a specific incident response scenario?`

const reportingChatResponse = `📊 **AI-Powered Reporting:**

Sentinel AI can generate comprehensive reports including:

**Available Reports:**
- Real-time threat intelligence
- Network security posture
- Incident response metrics
- Compliance and audit reports

**AI-Generated Insights:**
- Trend analysis and predictions
- Risk assessment and recommendations
- Performance metrics and KPIs
- Security posture improvements

**Custom Reports:**
- Executive summaries
- Technical deep-dives
- Compliance documentation
- Risk assessments

What type of report would you like me to generate?`

const bestPracticesChatResponse = `🔒 **Current Security Best Practices:**

**Access Control:**
- Implement multi-factor authentication (MFA)
- Use principle of least privilege
- Regular access reviews and deprovisioning

**Network Security:**
- Deploy network segmentation
- Monitor network traffic continuously
- Keep firewalls and IDS/IPS updated

**Data Protection:**
- Encrypt data at rest and in transit
- Regular backup testing and validation
- Implement data loss prevention (DLP)

**Monitoring & Response:**
- 24/7 security monitoring
- Automated threat detection
- Regular security assessments

Would you like me to elaborate on any of these areas?`

const generalChatResponse = `🤖 **Sentinel AI Assistant:**

I'm here to help with all aspects of your security operations:

**What I can assist with:**
- Threat detection and analysis
- Network monitoring and anomaly detection
- Incident response and containment
- Security reporting and compliance
- Best practices and recommendations

**AI Capabilities:**
- Real-time threat intelligence
- Machine learning-based detection
- Automated response actions
- Predictive analytics

How can I help you today?`
