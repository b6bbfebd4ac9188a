package events

import (
	"context"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/metrics"

	"go.uber.org/zap"
)

const (
	highRiskThreshold   = 80
	defaultRuleCooldown = time.Minute
)

// RegisterDefaultRules installs the built-in security alert rules
func (a *AlertingSystem) RegisterDefaultRules() {
	a.RegisterRule(AlertRule{
		ID:          "high-risk-threat",
		Name:        "High risk threat detected",
		Description: "A threat scored at or above the high-risk threshold",
		EventType:   ThreatAnalysisEvent,
		Condition:   RiskScoreAtLeast(highRiskThreshold),
		Level:       CriticalAlert,
		Cooldown:    defaultRuleCooldown,
	})
	a.RegisterRule(AlertRule{
		ID:          "network-anomaly",
		Name:        "Network attack pattern detected",
		Description: "DDoS or port scanning activity was detected on the network",
		EventType:   NetworkAnomalyEvent,
		Condition:   AnomalyTypeIn("DDoS Attack", "Port Scanning"),
		LevelFor: func(e Event) AlertLevel {
			severity, _ := e.Data["severity"].(string)
			return LevelForSeverity(ai.Severity(severity))
		},
		Cooldown: defaultRuleCooldown,
	})
	a.RegisterRule(AlertRule{
		ID:          "incident-needs-human",
		Name:        "Incident requires human intervention",
		Description: "An active incident cannot be handled by automated response alone",
		EventType:   IncidentResponseEvent,
		Condition:   FlagSet("humanInterventionRequired"),
		Level:       ErrorAlert,
		Cooldown:    defaultRuleCooldown,
	})
}

// RiskScoreAtLeast holds when the event's riskScore is at least threshold
func RiskScoreAtLeast(threshold float64) AlertCondition {
	return func(event Event) bool {
		score, ok := number(event.Data["riskScore"])
		return ok && score >= threshold
	}
}

// AnomalyTypeIn holds when the event's anomalyType is one of types
func AnomalyTypeIn(types ...string) AlertCondition {
	return func(event Event) bool {
		anomaly, _ := event.Data["anomalyType"].(string)
		for _, t := range types {
			if anomaly == t {
				return true
			}
		}
		return false
	}
}

// FlagSet holds when the boolean field key is true
func FlagSet(key string) AlertCondition {
	return func(event Event) bool {
		set, _ := event.Data[key].(bool)
		return set
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ThreatEvent describes a completed threat analysis
func ThreatEvent(source string, t ai.ThreatAnalysis) Event {
	return Event{
		Type:   ThreatAnalysisEvent,
		Source: source,
		Data: map[string]any{
			"threatId":   t.ThreatID,
			"threatType": t.ThreatType,
			"riskScore":  t.RiskScore,
			"severity":   string(ai.SeverityForScore(t.RiskScore)),
		},
	}
}

// AnomalyEvent describes a detected network anomaly
func AnomalyEvent(source string, n ai.NetworkAnalysis) Event {
	return Event{
		Type:   NetworkAnomalyEvent,
		Source: source,
		Data: map[string]any{
			"anomalyType":     n.AnomalyType,
			"severity":        string(n.Severity),
			"affectedDevices": n.AffectedDevices,
		},
	}
}

// IncidentEvent describes a generated incident response plan
func IncidentEvent(source string, r ai.IncidentResponse) Event {
	return Event{
		Type:   IncidentResponseEvent,
		Source: source,
		Data: map[string]any{
			"incidentId":                r.IncidentID,
			"priorityLevel":             string(r.PriorityLevel),
			"humanInterventionRequired": r.HumanInterventionRequired,
			"estimatedResolutionTime":   r.EstimatedResolutionTime,
		},
	}
}

// Pipeline feeds events to the alerting rules and the publisher
type Pipeline struct {
	publisher Publisher
	alerts    *AlertingSystem
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewPipeline wires a publisher and an alerting system. A nil publisher
// drops events after alerting.
func NewPipeline(publisher Publisher, alerts *AlertingSystem, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{publisher: publisher, alerts: alerts, metrics: collector, logger: logger}
}

// Emit evaluates alert rules, then publishes. Publish failures are logged.
func (p *Pipeline) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if p.alerts != nil {
		p.alerts.ProcessEvent(event)
	}
	err := p.publisher.Publish(ctx, event)
	p.metrics.EventPublished(string(event.Type), err)
	if err != nil {
		p.logger.Warn("failed to publish event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// Alerts exposes the alerting system behind the pipeline
func (p *Pipeline) Alerts() *AlertingSystem {
	return p.alerts
}

// Close closes the publisher
func (p *Pipeline) Close() error {
	return p.publisher.Close()
}
