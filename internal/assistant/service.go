// Package assistant orchestrates a chat turn: it loads or creates the
// conversation, records the user message, generates a reply and records it,
// and optionally speaks the reply through the voice client.
package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/conversation"
	"github.com/RichardoC/realty-assistant/internal/llm"
	"github.com/RichardoC/realty-assistant/internal/models"
	"github.com/RichardoC/realty-assistant/internal/trace"
	"github.com/RichardoC/realty-assistant/internal/voice"
	"go.uber.org/zap"
)

var errNoSpeaker = errors.New("voice synthesis is not configured")

// Conversations is the subset of the conversation manager used here.
type Conversations interface {
	CreateConversation(ctx context.Context, userID string, metadata models.Metadata) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID string, role models.Role, content string, metadata models.Metadata) (*models.Message, error)
	BuildConversationContext(ctx context.Context, conversationID string, includeSystemPrompt bool) ([]models.Turn, error)
	SystemTurn() models.Turn
}

// Speaker is the subset of the voice client used here.
type Speaker interface {
	Synthesize(ctx context.Context, req voice.SynthesisRequest) (*voice.Audio, error)
	Voices(ctx context.Context) ([]voice.Voice, error)
}

// ChatRequest is one inbound chat turn. ConversationID and UserID are optional.
type ChatRequest struct {
	Message        string
	ConversationID string
	UserID         string
	Context        models.Metadata
}

// ChatMetadata describes how a reply was produced.
type ChatMetadata struct {
	Model          string  `json:"model"`
	Intent         string  `json:"intent"`
	Temperature    float64 `json:"temperature"`
	ResponseTimeMS int64   `json:"responseTime"`
	TokenCount     int     `json:"tokenCount"`
	MessageCount   int     `json:"messageCount"`
	Fallback       bool    `json:"fallback,omitempty"`
}

// ChatResult is the outcome of ProcessChatMessage.
type ChatResult struct {
	ConversationID string       `json:"conversationId"`
	Response       string       `json:"response"`
	Metadata       ChatMetadata `json:"metadata"`
}

// SpokenChatResult is a chat reply together with its audio.
type SpokenChatResult struct {
	ChatResult
	Audio       string `json:"audio"`
	AudioFormat string `json:"audioFormat"`
	ContentType string `json:"contentType"`
	VoiceID     string `json:"voiceId"`
	AudioSize   int    `json:"audioSize"`
}

// Stats are process-lifetime request counters.
type Stats struct {
	RequestCount      int64   `json:"requestCount"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	RequestsPerMinute float64 `json:"requestsPerMinute"`
	Model             string  `json:"model"`
	VoiceConfigured   bool    `json:"voiceConfigured"`
}

type Service struct {
	conversations Conversations
	generator     llm.ResponseGenerator
	speaker       Speaker
	aiCfg         config.AIConfig
	logger        *zap.Logger

	requests atomic.Int64
	started  time.Time
	now      func() time.Time
}

// New wires the orchestration service. speaker may be nil, in which case the
// voice operations fail with an upstream error.
func New(conversations Conversations, generator llm.ResponseGenerator, speaker Speaker, aiCfg config.AIConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		conversations: conversations,
		generator:     generator,
		speaker:       speaker,
		aiCfg:         aiCfg,
		logger:        logger.Named("assistant"),
		started:       time.Now(),
		now:           time.Now,
	}
}

// ProcessChatMessage runs one chat turn.
//
// The user message, the generation and the assistant message are separate
// steps without a shared transaction. If a later step fails, the user message
// stays persisted without a reply and the error is returned to the caller.
//
// Cancellation of ctx is ignored so a caller that goes away mid-turn does not
// leave the user message without its reply. Deadlines set by the generator
// and the voice client still apply.
func (s *Service) ProcessChatMessage(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	ctx = context.WithoutCancel(ctx)
	s.requests.Add(1)
	start := s.now()

	if req.Message == "" {
		return nil, apperr.Validation("message is required")
	}

	var (
		conversationID string
		prior          int
		turns          []models.Turn
	)
	if req.ConversationID != "" {
		conv, err := s.conversations.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, apperr.NotFound("conversation", req.ConversationID)
		}
		turns, err = s.conversations.BuildConversationContext(ctx, conv.ID, true)
		if err != nil {
			return nil, err
		}
		conversationID, prior = conv.ID, conv.MessageCount
	} else {
		conv, err := s.conversations.CreateConversation(ctx, req.UserID, req.Context)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ID
		turns = []models.Turn{s.conversations.SystemTurn()}
	}

	var userMeta models.Metadata
	if len(req.Context) > 0 {
		userMeta = models.Metadata{"context": req.Context}
	}
	if _, err := s.conversations.AddMessage(ctx, conversationID, models.RoleUser, req.Message, userMeta); err != nil {
		return nil, err
	}
	turns = append(turns, models.Turn{Role: models.RoleUser, Content: req.Message})

	gen, err := s.generator.Generate(ctx, turns)
	if err != nil {
		s.logger.Error("generation failed after user message was stored",
			zap.String("conversation_id", conversationID),
			zap.String("request_id", trace.FromContext(ctx)),
			zap.Error(err))
		return nil, err
	}

	elapsed := s.now().Sub(start)
	meta := ChatMetadata{
		Model:          gen.Model,
		Intent:         gen.Intent.String(),
		Temperature:    s.aiCfg.Temperature,
		ResponseTimeMS: elapsed.Milliseconds(),
		TokenCount:     conversation.EstimateTokens(gen.Text),
		MessageCount:   prior + 2,
		Fallback:       gen.Fallback,
	}

	if _, err := s.conversations.AddMessage(ctx, conversationID, models.RoleAssistant, gen.Text, models.Metadata{
		"model":        meta.Model,
		"intent":       meta.Intent,
		"temperature":  meta.Temperature,
		"responseTime": meta.ResponseTimeMS,
		"tokenCount":   meta.TokenCount,
	}); err != nil {
		s.logger.Error("storing reply failed after user message was stored",
			zap.String("conversation_id", conversationID),
			zap.String("request_id", trace.FromContext(ctx)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("chat message processed",
		zap.String("conversation_id", conversationID),
		zap.String("request_id", trace.FromContext(ctx)),
		zap.String("intent", meta.Intent),
		zap.Duration("elapsed", elapsed))

	return &ChatResult{ConversationID: conversationID, Response: gen.Text, Metadata: meta}, nil
}

func (s *Service) requireSpeaker() error {
	if s.speaker == nil {
		return apperr.Upstream("voice", errNoSpeaker)
	}
	return nil
}

// SynthesizeVoice converts text to audio.
func (s *Service) SynthesizeVoice(ctx context.Context, req voice.SynthesisRequest) (*voice.Audio, error) {
	ctx = context.WithoutCancel(ctx)
	s.requests.Add(1)
	if err := s.requireSpeaker(); err != nil {
		return nil, err
	}
	return s.speaker.Synthesize(ctx, req)
}

// GetAvailableVoices lists the voices offered by the voice API.
func (s *Service) GetAvailableVoices(ctx context.Context) ([]voice.Voice, error) {
	if err := s.requireSpeaker(); err != nil {
		return nil, err
	}
	return s.speaker.Voices(ctx)
}

// ChatAndSpeak runs a chat turn and synthesizes the reply. The chat turn is
// persisted even when synthesis fails.
func (s *Service) ChatAndSpeak(ctx context.Context, req ChatRequest, speech voice.SynthesisRequest) (*SpokenChatResult, error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.requireSpeaker(); err != nil {
		return nil, err
	}
	if speech.Settings != nil {
		if errs := voice.ValidateSettings(*speech.Settings); len(errs) > 0 {
			return nil, apperr.Validation("invalid voice settings", errs...)
		}
	}

	chat, err := s.ProcessChatMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	speech.Text = chat.Response
	audio, err := s.speaker.Synthesize(ctx, speech)
	if err != nil {
		s.logger.Warn("reply stored but synthesis failed",
			zap.String("conversation_id", chat.ConversationID),
			zap.String("request_id", trace.FromContext(ctx)),
			zap.Error(err))
		return nil, err
	}

	return &SpokenChatResult{
		ChatResult:  *chat,
		Audio:       base64.StdEncoding.EncodeToString(audio.Data),
		AudioFormat: audio.Format,
		ContentType: audio.ContentType,
		VoiceID:     audio.VoiceID,
		AudioSize:   audio.Size,
	}, nil
}

// GetServiceStats reports the request count and a simple rate over uptime.
func (s *Service) GetServiceStats() Stats {
	uptime := s.now().Sub(s.started)
	count := s.requests.Load()
	var rpm float64
	if minutes := uptime.Minutes(); minutes > 0 {
		rpm = float64(count) / minutes
	}
	return Stats{
		RequestCount:      count,
		UptimeSeconds:     uptime.Seconds(),
		RequestsPerMinute: rpm,
		Model:             s.aiCfg.Model,
		VoiceConfigured:   s.speaker != nil,
	}
}
