package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter measures prompt size in model tokens
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter is the offline fallback: roughly one token per four bytes.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// tiktokenCounter uses cl100k_base, which is close enough for Gemini prompts.
// The encoding is loaded lazily because the first load may hit the network.
type tiktokenCounter struct {
	once   sync.Once
	enc    *tiktoken.Tiktoken
	logger *zap.Logger
}

// NewTiktokenCounter returns a counter that falls back to EstimateCounter
// when the encoding cannot be loaded.
func NewTiktokenCounter(logger *zap.Logger) TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tiktokenCounter{logger: logger}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("Token encoding unavailable, using character estimate", zap.Error(err))
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return EstimateCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// trimToBudget cuts text from the front until it fits the budget, keeping
// the most recent part of the conversation. Nothing fits a budget below one.
func trimToBudget(counter TokenCounter, text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if counter.Count(text) <= budget {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && counter.Count(string(runes)) > budget {
		cut := len(runes) / 10
		if cut < 1 {
			cut = 1
		}
		runes = runes[cut:]
	}
	return string(runes)
}
