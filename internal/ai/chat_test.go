package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockChatModel struct {
	mock.Mock
}

func (m *mockChatModel) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type panickingModel struct{}

func (panickingModel) Generate(context.Context, string) (string, error) {
	panic("model exploded")
}

func TestClassifyIntent(t *testing.T) {
	testCases := []struct {
		message string
		want    Intent
	}{
		{"Is this a THREAT?", IntentThreatAnalysis},
		{"found malware on a laptop", IntentThreatAnalysis},
		{"possible virus", IntentThreatAnalysis},
		{"network is slow", IntentNetworkMonitoring},
		{"odd traffic at night", IntentNetworkMonitoring},
		{"open an incident", IntentIncidentResponse},
		{"we had a breach", IntentIncidentResponse},
		{"generate a report", IntentReporting},
		{"need an analysis", IntentReporting},
		{"best practices for passwords", IntentBestPractices},
		{"improve protection", IntentBestPractices},
		{"can you help", IntentGeneralHelp},
		{"hello there", IntentGeneralHelp},
		{"", IntentGeneralHelp},
		{"threat in network traffic report", IntentThreatAnalysis},
		{"network incident", IntentNetworkMonitoring},
		{"security report", IntentReporting},
	}

	for _, tc := range testCases {
		t.Run(tc.message, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyIntent(tc.message))
		})
	}
}

func TestProcessChatMessage_Templates(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	assert.True(t, strings.HasPrefix(svc.ProcessChatMessage(ctx, "malware!", nil), "🛡️ **AI Threat Analysis Response:**"))
	assert.True(t, strings.HasPrefix(svc.ProcessChatMessage(ctx, "traffic spike", nil), "🌐 **AI Network Monitoring Response:**"))
	assert.True(t, strings.HasPrefix(svc.ProcessChatMessage(ctx, "incident", nil), "🚨 **AI Incident Response Guidance:**"))
	assert.True(t, strings.HasPrefix(svc.ProcessChatMessage(ctx, "report", nil), "📊 **AI-Powered Reporting:**"))
	assert.True(t, strings.HasPrefix(svc.ProcessChatMessage(ctx, "protection tips", nil), "🔒 **Current Security Best Practices:**"))
	assert.True(t, strings.HasPrefix(svc.ProcessChatMessage(ctx, "hi", nil), "🤖 **Sentinel AI Assistant:**"))
}

func TestProcessChatMessage_UsesModelWhenConfigured(t *testing.T) {
	model := new(mockChatModel)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Detected intent: threat_analysis") &&
			strings.Contains(p, `"page":"threats"`) &&
			strings.HasSuffix(p, "Question: what is this threat?")
	})).Return("Model answer", nil)

	svc := NewService(WithChatModel(model, EstimateCounter{}, 512))
	reply := svc.ProcessChatMessage(context.Background(), "what is this threat?", map[string]any{"page": "threats"})

	assert.Equal(t, "Model answer", reply)
	model.AssertExpectations(t)
}

func TestProcessChatMessage_ModelErrorFallsBackToTemplate(t *testing.T) {
	model := new(mockChatModel)
	model.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

	svc := NewService(WithChatModel(model, nil, 0))
	reply := svc.ProcessChatMessage(context.Background(), "network status?", nil)

	assert.Equal(t, networkChatResponse, reply)
	model.AssertNumberOfCalls(t, "Generate", 1)
}

func TestProcessChatMessage_EmptyModelReplyFallsBack(t *testing.T) {
	model := new(mockChatModel)
	model.On("Generate", mock.Anything, mock.Anything).Return("   ", nil)

	svc := NewService(WithChatModel(model, nil, 0))
	assert.Equal(t, reportingChatResponse, svc.ProcessChatMessage(context.Background(), "report please", nil))
}

func TestProcessChatMessage_PanicYieldsApology(t *testing.T) {
	svc := NewService(WithChatModel(panickingModel{}, nil, 0))
	assert.Equal(t, ApologyMessage, svc.ProcessChatMessage(context.Background(), "hello", nil))
}

func TestBuildPrompt_RespectsBudget(t *testing.T) {
	svc := NewService(WithChatModel(new(mockChatModel), EstimateCounter{}, 64))
	long := strings.Repeat("word ", 500) + "final question"

	prompt := svc.buildPrompt(long, IntentGeneralHelp, nil)

	assert.LessOrEqual(t, EstimateCounter{}.Count(prompt), 64+2)
	assert.True(t, strings.HasSuffix(prompt, "final question"))
}

func TestTrimToBudget(t *testing.T) {
	counter := EstimateCounter{}
	assert.Equal(t, "short", trimToBudget(counter, "short", 100))
	trimmed := trimToBudget(counter, strings.Repeat("a", 400), 10)
	assert.LessOrEqual(t, counter.Count(trimmed), 10)
	assert.Empty(t, trimToBudget(counter, "abc", 0))
	assert.Empty(t, trimToBudget(counter, "abc", -5))
}

func TestBuildPrompt_TinyBudgetStillTrims(t *testing.T) {
	svc := NewService(WithChatModel(new(mockChatModel), EstimateCounter{}, 4))
	long := strings.Repeat("word ", 500) + "end"
	chatContext := map[string]any{"threats": strings.Repeat("x", 1000)}

	prompt := svc.buildPrompt(long, IntentGeneralHelp, chatContext)

	assert.NotContains(t, prompt, "Dashboard context")
	assert.True(t, strings.HasPrefix(prompt, "Detected intent: "))
	assert.Less(t, len(prompt), 64)
	assert.True(t, strings.HasSuffix(prompt, "end"))
}
