package provider

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/models"
	openai_provider "github.com/mohammad-safakhou/frontdesk/provider/openai"
)

// Client names a judge backend.
type Client string

const (
	OpenAI Client = "openai"
	Static Client = "static"
)

// Judge decides whether a candidate answer can be given to a caller without a human.
// Implementations return models.ErrJudgmentUnavailable (wrapped) on timeout or garbage.
type Judge interface {
	Judge(ctx context.Context, question, candidateAnswer, context string) (models.Judgment, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, question, candidateAnswer, context string) (models.Judgment, error)

func (f JudgeFunc) Judge(ctx context.Context, question, candidateAnswer, qctx string) (models.Judgment, error) {
	return f(ctx, question, candidateAnswer, qctx)
}

// StaticJudge always returns the same confidence. When confident it answers with the candidate.
type StaticJudge struct {
	Confident bool
}

func (s StaticJudge) Judge(_ context.Context, _ string, candidateAnswer, _ string) (models.Judgment, error) {
	if !s.Confident {
		return models.Judgment{}, nil
	}
	return models.Judgment{Confident: true, Answer: candidateAnswer}, nil
}

// NewJudge builds the judge selected by cfg.Type. opts are passed to the OpenAI client.
func NewJudge(cfg config.LLMConfig, opts ...openai_provider.Option) (Judge, error) {
	switch Client(cfg.Type) {
	case OpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("llm.api_key (or OPENAI_API_KEY) not set")
		}
		return openai_provider.NewOpenAIClient(apiKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, opts...), nil
	case Static:
		return StaticJudge{Confident: true}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Type)
	}
}
