// Package llm produces assistant replies from a conversation context. The
// default generator is a keyword classifier with canned answers; a
// langchaingo-backed generator can be swapped in without touching callers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// ApologyMessage replaces the reply whenever generation fails.
const ApologyMessage = "I apologize, but I'm having trouble processing your request right now. " +
	"Please try again in a moment, or contact one of our licensed agents directly for immediate assistance."

// Generation is one generated reply.
type Generation struct {
	Text   string
	Model  string
	Intent Intent
	// Fallback is set when Text is the apology substituted for a failure.
	Fallback bool
}

// ResponseGenerator turns a context window into reply text.
type ResponseGenerator interface {
	Generate(ctx context.Context, turns []models.Turn) (*Generation, error)
}

func lastUserMessage(turns []models.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// RuleGenerator answers the latest user message with the canned paragraph for
// its intent. It never fails.
type RuleGenerator struct {
	model string
}

func NewRuleGenerator(model string) *RuleGenerator {
	return &RuleGenerator{model: model}
}

func (g *RuleGenerator) Generate(_ context.Context, turns []models.Turn) (*Generation, error) {
	intent := Classify(lastUserMessage(turns))
	return &Generation{Text: intent.Response(), Model: g.model, Intent: intent}, nil
}

// ChatModelGenerator sends the full context window to a langchaingo chat model.
type ChatModelGenerator struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

func NewChatModelGenerator(llm llms.Model, cfg config.AIConfig) *ChatModelGenerator {
	return &ChatModelGenerator{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func (g *ChatModelGenerator) Generate(ctx context.Context, turns []models.Turn) (*Generation, error) {
	if len(turns) == 0 {
		return nil, errors.New("empty context")
	}

	messages := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		var typ schema.ChatMessageType
		switch t.Role {
		case models.RoleSystem:
			typ = schema.ChatMessageTypeSystem
		case models.RoleAssistant:
			typ = schema.ChatMessageTypeAI
		default:
			typ = schema.ChatMessageTypeHuman
		}
		messages = append(messages, llms.TextParts(typ, t.Content))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, errors.New("model returned no content")
	}

	return &Generation{
		Text:   resp.Choices[0].Content,
		Model:  g.model,
		Intent: Classify(lastUserMessage(turns)),
	}, nil
}

type safeGenerator struct {
	next   ResponseGenerator
	model  string
	logger *zap.Logger
}

// Safe wraps next so that errors, empty replies and panics are replaced by
// ApologyMessage. The returned generator never returns an error.
func Safe(next ResponseGenerator, model string, logger *zap.Logger) ResponseGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &safeGenerator{next: next, model: model, logger: logger.Named("llm")}
}

func (s *safeGenerator) apology() *Generation {
	return &Generation{Text: ApologyMessage, Model: s.model, Intent: IntentGeneric, Fallback: true}
}

func (s *safeGenerator) Generate(ctx context.Context, turns []models.Turn) (gen *Generation, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("response generator panicked", zap.Any("panic", r))
			gen, err = s.apology(), nil
		}
	}()

	gen, err = s.next.Generate(ctx, turns)
	if err != nil {
		s.logger.Error("response generation failed", zap.Error(err))
		return s.apology(), nil
	}
	if gen == nil || gen.Text == "" {
		s.logger.Warn("response generator returned an empty reply")
		return s.apology(), nil
	}
	return gen, nil
}

// New builds the configured generator, already wrapped with Safe.
func New(cfg config.AIConfig, logger *zap.Logger) (ResponseGenerator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.OpenAIAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.OpenAIAPIKey))
		} else {
			// local OpenAI-compatible servers ignore the token but the client requires one
			opts = append(opts, openai.WithToken("unused"))
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI: %w", err)
		}
		return Safe(NewChatModelGenerator(client, cfg), cfg.Model, logger), nil
	default:
		return Safe(NewRuleGenerator(cfg.Model), cfg.Model, logger), nil
	}
}
