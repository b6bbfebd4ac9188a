// Package ai implements Sentinel's deterministic analysis heuristics. Despite
// the name nothing here is learned: scores, classifications and replies come
// from fixed thresholds, string matching and static tables. An optional chat
// model can be plugged in for free-form questions.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChatModel is an optional generator for chat replies
type ChatModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service exposes every heuristic
type Service struct {
	logger          *zap.Logger
	chat            ChatModel
	tokens          TokenCounter
	maxPromptTokens int
	now             func() time.Time
}

// Option configures a Service
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChatModel routes chat messages through model before falling back to templates
func WithChatModel(model ChatModel, counter TokenCounter, maxPromptTokens int) Option {
	return func(s *Service) {
		s.chat = model
		if counter != nil {
			s.tokens = counter
		}
		if maxPromptTokens > 0 {
			s.maxPromptTokens = maxPromptTokens
		}
	}
}

// WithClock overrides the time source used for report ids
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(opts ...Option) *Service {
	s := &Service{
		logger:          zap.NewNop(),
		tokens:          EstimateCounter{},
		maxPromptTokens: 2048,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasChatModel reports whether chat replies may come from a model
func (s *Service) HasChatModel() bool {
	return s.chat != nil
}

func (s *Service) AnalyzeThreat(_ context.Context, threat ThreatInput) ThreatAnalysis {
	return analyzeThreat(threat)
}

func (s *Service) DetectNetworkAnomalies(_ context.Context, sample NetworkSample) []NetworkAnalysis {
	return detectNetworkAnomalies(sample)
}

func (s *Service) GenerateIncidentResponse(_ context.Context, incident IncidentInput) IncidentResponse {
	return generateIncidentResponse(incident)
}

// GenerateAIReport builds a report. data is accepted for API symmetry but
// does not influence the content.
func (s *Service) GenerateAIReport(_ context.Context, reportType string, _ json.RawMessage) Report {
	return generateReport(reportType, s.now())
}

// ProcessChatMessage answers a chat message. It never fails: model errors
// fall back to the intent templates and anything unexpected yields
// ApologyMessage.
func (s *Service) ProcessChatMessage(ctx context.Context, message string, chatContext map[string]any) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Chat processing failed", zap.Any("panic", r))
			reply = ApologyMessage
		}
	}()

	intent := ClassifyIntent(message)

	if s.chat != nil && strings.TrimSpace(message) != "" {
		prompt := s.buildPrompt(message, intent, chatContext)
		answer, err := s.chat.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		s.logger.Warn("Chat model unavailable, using template reply",
			zap.String("intent", string(intent)),
			zap.Error(err))
	}

	return templateResponse(intent)
}

func (s *Service) buildPrompt(message string, intent Intent, chatContext map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Detected intent: %s\n", intent)
	if len(chatContext) > 0 {
		if data, err := json.Marshal(chatContext); err == nil {
			fmt.Fprintf(&sb, "Dashboard context: %s\n", data)
		}
	}
	header := sb.String()

	budget := s.maxPromptTokens - s.tokens.Count(header) - s.tokens.Count("Question: ")
	if budget < 16 {
		// Context alone overflows; drop it and keep only the question.
		header = fmt.Sprintf("Detected intent: %s\n", intent)
		budget = s.maxPromptTokens - s.tokens.Count(header) - s.tokens.Count("Question: ")
	}
	if budget < 1 {
		// Keep at least the tail of the question.
		budget = 1
	}
	return header + "Question: " + trimToBudget(s.tokens, message, budget)
}
