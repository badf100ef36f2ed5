// Package api is the HTTP boundary: gin routes, request validation, rate
// limiting and response shaping over the conversation, assistant, voice and
// property services.
package api

import (
	"context"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/assistant"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/conversation"
	"github.com/RichardoC/realty-assistant/internal/db"
	"github.com/RichardoC/realty-assistant/internal/models"
	"github.com/RichardoC/realty-assistant/internal/property"
	"github.com/RichardoC/realty-assistant/internal/voice"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Database is what the health endpoints need from the persistence gateway.
type Database interface {
	Ping(ctx context.Context) error
	Health() db.Health
}

// Deps are the services the handlers call into.
type Deps struct {
	Config        *config.Config
	Database      Database
	Conversations *conversation.Manager
	Assistant     *assistant.Service
	Voice         *voice.Client
	Properties    *property.Service
	Logger        *zap.Logger
}

type Handler struct {
	cfg           *config.Config
	db            Database
	conversations *conversation.Manager
	assistant     *assistant.Service
	voice         *voice.Client
	properties    *property.Service
	logger        *zap.Logger
	started       time.Time
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:           d.Config,
		db:            d.Database,
		conversations: d.Conversations,
		assistant:     d.Assistant,
		voice:         d.Voice,
		properties:    d.Properties,
		logger:        logger.Named("api"),
		started:       time.Now(),
	}
}

type chatMessageRequest struct {
	Message        string          `json:"message" binding:"required"`
	ConversationID string          `json:"conversationId" binding:"omitempty,uuid"`
	UserID         string          `json:"userId" binding:"omitempty,max=128"`
	Context        models.Metadata `json:"context"`
}

func (r chatMessageRequest) toChat() assistant.ChatRequest {
	return assistant.ChatRequest{
		Message:        r.Message,
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Context:        r.Context,
	}
}

// HandleMessage processes one chat turn.
func (h *Handler) HandleMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindingError(err))
		return
	}

	res, err := h.assistant.ProcessChatMessage(c.Request.Context(), req.toChat())
	if err != nil {
		h.fail(c, err)
		return
	}

	ok(c, gin.H{
		"conversationId": res.ConversationID,
		"response":       res.Response,
		"metadata":       res.Metadata,
	})
}

func (h *Handler) GetConversation(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	conv, err := h.conversations.GetConversation(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if conv == nil {
		h.fail(c, apperr.NotFound("conversation", id))
		return
	}
	ok(c, gin.H{"conversation": conv})
}

type historyQuery struct {
	Limit           int   `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset          int   `form:"offset" binding:"omitempty,min=0"`
	IncludeMetadata *bool `form:"includeMetadata"`
}

func (h *Handler) GetMessages(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("invalid query parameters", err.Error()))
		return
	}

	ctx := c.Request.Context()
	conv, err := h.conversations.GetConversation(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if conv == nil {
		h.fail(c, apperr.NotFound("conversation", id))
		return
	}

	messages, err := h.conversations.GetConversationHistory(ctx, id, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	if q.IncludeMetadata != nil && !*q.IncludeMetadata {
		for _, m := range messages {
			m.Metadata = nil
		}
	}

	ok(c, gin.H{
		"conversationId": id,
		"messages":       messages,
		"count":          len(messages),
		"totalMessages":  conv.MessageCount,
	})
}

type updateStatusRequest struct {
	Status   models.ConversationStatus `json:"status" binding:"required,oneof=active paused completed archived"`
	Metadata models.Metadata           `json:"metadata"`
}

func (h *Handler) UpdateConversation(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindingError(err))
		return
	}

	if err := h.conversations.UpdateConversationStatus(c.Request.Context(), id, req.Status, req.Metadata); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"conversationId": id, "status": req.Status})
}

type pageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

func (h *Handler) GetConversations(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" || len(userID) > 128 {
		h.fail(c, apperr.Validation("invalid userId"))
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("invalid query parameters", err.Error()))
		return
	}

	convs, err := h.conversations.GetUserConversations(c.Request.Context(), userID, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"userId": userID, "conversations": convs, "count": len(convs)})
}

func (h *Handler) ChatStats(c *gin.Context) {
	st, err := h.conversations.GetStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"conversations": st, "service": h.assistant.GetServiceStats()})
}
