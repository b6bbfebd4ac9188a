package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const chatSystemInstruction = "You are Sentinel AI, a security operations assistant. " +
	"Answer briefly in Markdown with concrete defensive steps. " +
	"Never provide offensive or exploit instructions."

// GeminiModel answers chat prompts with a Gemini model
type GeminiModel struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiModel connects to the Gemini API with an API key
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	return &GeminiModel{client: client, model: model}, nil
}

// Generate returns the text of the first candidate
func (g *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("gemini returned no text")
	}
	return out, nil
}

func (g *GeminiModel) Close() error {
	return g.client.Close()
}
