package events

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertLevel represents the severity level of an alert
type AlertLevel int

const (
	InfoAlert AlertLevel = iota
	WarningAlert
	ErrorAlert
	CriticalAlert
)

// String returns the string representation of AlertLevel
func (l AlertLevel) String() string {
	switch l {
	case InfoAlert:
		return "INFO"
	case WarningAlert:
		return "WARNING"
	case ErrorAlert:
		return "ERROR"
	case CriticalAlert:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(l.String()))
}

// LevelForSeverity maps an analysis severity onto an alert level
func LevelForSeverity(s ai.Severity) AlertLevel {
	switch s {
	case ai.SeverityCritical:
		return CriticalAlert
	case ai.SeverityHigh:
		return ErrorAlert
	case ai.SeverityMedium:
		return WarningAlert
	default:
		return InfoAlert
	}
}

// Alert represents a raised alert
type Alert struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"ruleId"`
	Level       AlertLevel     `json:"level"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Source      string         `json:"source"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
}

// AlertCondition evaluates whether an event should raise an alert
type AlertCondition func(event Event) bool

// AlertHandler is notified of every raised alert
type AlertHandler func(alert Alert)

// AlertRule raises an alert when Condition holds for an event of EventType.
// LevelFor, when set, overrides Level per event.
type AlertRule struct {
	ID          string
	Name        string
	Description string
	EventType   EventType
	Condition   AlertCondition
	Level       AlertLevel
	LevelFor    func(event Event) AlertLevel
	Cooldown    time.Duration
}

// AlertingSystem evaluates rules against events and keeps a bounded history
type AlertingSystem struct {
	mutex         sync.RWMutex
	rules         map[string]AlertRule
	lastTriggered map[string]time.Time
	alerts        []Alert
	handlers      []AlertHandler
	maxAlerts     int

	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewAlertingSystem creates a new alerting system
func NewAlertingSystem(maxAlerts int, collector *metrics.Collector, logger *zap.Logger) *AlertingSystem {
	if maxAlerts <= 0 {
		maxAlerts = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertingSystem{
		rules:         make(map[string]AlertRule),
		lastTriggered: make(map[string]time.Time),
		alerts:        make([]Alert, 0, 64),
		maxAlerts:     maxAlerts,
		metrics:       collector,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterRule registers an alert rule
func (a *AlertingSystem) RegisterRule(rule AlertRule) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.rules[rule.ID] = rule
}

// RegisterHandler registers an alert handler
func (a *AlertingSystem) RegisterHandler(handler AlertHandler) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.handlers = append(a.handlers, handler)
}

// ProcessEvent evaluates every rule and returns the alerts raised
func (a *AlertingSystem) ProcessEvent(event Event) []Alert {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	now := a.now()
	var raised []Alert

	for _, id := range a.ruleIDs() {
		rule := a.rules[id]
		if rule.EventType != "" && rule.EventType != event.Type {
			continue
		}
		if last, ok := a.lastTriggered[id]; ok && now.Sub(last) < rule.Cooldown {
			continue
		}
		if rule.Condition == nil || !rule.Condition(event) {
			continue
		}

		level := rule.Level
		if rule.LevelFor != nil {
			level = rule.LevelFor(event)
		}
		alert := Alert{
			ID:          uuid.NewString(),
			RuleID:      rule.ID,
			Level:       level,
			Title:       rule.Name,
			Description: rule.Description,
			Source:      string(event.Type),
			Timestamp:   now,
			Data:        event.Data,
		}

		a.alerts = append(a.alerts, alert)
		if len(a.alerts) > a.maxAlerts {
			a.alerts = a.alerts[len(a.alerts)-a.maxAlerts:]
		}
		a.lastTriggered[id] = now
		raised = append(raised, alert)

		a.metrics.AlertRaised(rule.ID, level.String())
		a.logger.Warn("🚨 Alert raised",
			zap.String("rule", rule.ID),
			zap.String("level", level.String()),
			zap.String("title", rule.Name))

		for _, handler := range a.handlers {
			go handler(alert)
		}
	}
	return raised
}

// ruleIDs returns rule ids in a stable order so evaluation is deterministic
func (a *AlertingSystem) ruleIDs() []string {
	ids := make([]string, 0, len(a.rules))
	for id := range a.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAlerts returns all alerts, oldest first
func (a *AlertingSystem) GetAlerts() []Alert {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	alerts := make([]Alert, len(a.alerts))
	copy(alerts, a.alerts)
	return alerts
}

// GetActiveAlerts returns all unresolved alerts
func (a *AlertingSystem) GetActiveAlerts() []Alert {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	active := []Alert{}
	for _, alert := range a.alerts {
		if !alert.Resolved {
			active = append(active, alert)
		}
	}
	return active
}

// ResolveAlert marks an alert resolved. It reports whether the alert exists.
func (a *AlertingSystem) ResolveAlert(alertID string) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for i := range a.alerts {
		if a.alerts[i].ID == alertID {
			if !a.alerts[i].Resolved {
				now := a.now()
				a.alerts[i].Resolved = true
				a.alerts[i].ResolvedAt = &now
			}
			return true
		}
	}
	return false
}

// ClearResolved drops resolved alerts from the history and returns how many
func (a *AlertingSystem) ClearResolved() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	kept := a.alerts[:0]
	for _, alert := range a.alerts {
		if !alert.Resolved {
			kept = append(kept, alert)
		}
	}
	removed := len(a.alerts) - len(kept)
	// Zero the tail so dropped alerts can be collected.
	for i := len(kept); i < len(a.alerts); i++ {
		a.alerts[i] = Alert{}
	}
	a.alerts = kept
	return removed
}
