package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// LLMService implements Generator on top of the Gemini API. Constructed once
// in main and injected; when no API key is configured the service carries no
// client and every Generate call returns ErrAgentsUnavailable.
type LLMService struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey, model string, timeout time.Duration, logger *zap.Logger) (*LLMService, error) {
	svc := &LLMService{
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
	if apiKey == "" {
		logger.Warn("No Gemini API key configured, agent system disabled")
		return svc, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	svc.client = client
	return svc, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Error("Error closing GenAI client", zap.Error(err))
		}
	}
}

func (s *LLMService) Available() bool {
	return s.client != nil
}

// Generate runs one prompt under the agent's persona. Every call is bounded
// by the configured timeout; a hung upstream must not hold a request forever.
func (s *LLMService) Generate(ctx context.Context, agent Agent, prompt string) (string, error) {
	if s.client == nil {
		return "", ErrAgentsUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(agent.Instruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation failed for %s: %w", agent.Name, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from %s", agent.Name)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			s.logger.Debug("Non-text response part skipped",
				zap.String("agent", agent.Name),
				zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text parts in response from %s", agent.Name)
	}
	return text.String(), nil
}
