package api

import (
	"fmt"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Limits are the per-client limiters for general, chat and voice traffic.
type Limits struct {
	API   ratelimit.Limiter
	Chat  ratelimit.Limiter
	Voice ratelimit.Limiter
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(h *Handler, limits Limits) (*gin.Engine, error) {
	dev := h.cfg.Server.Development()

	r := gin.New()
	if err := r.SetTrustedProxies(h.cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("setting trusted proxies: %w", err)
	}
	r.Use(RequestID(), Detach(), Compliance(h.cfg.Server), AccessLog(h.logger), Recovery(h.logger, dev))
	r.NoRoute(func(c *gin.Context) {
		respondError(c, apperr.NotFound("route", c.Request.Method+" "+c.Request.URL.Path), dev)
	})

	health := r.Group("/api/health")
	{
		health.GET("", h.Health)
		health.GET("/detailed", h.HealthDetailed)
		health.GET("/readiness", h.Readiness)
		health.GET("/liveness", h.Liveness)
	}

	api := r.Group("/api", RateLimit(limits.API, h.logger, dev))

	chatLimit := RateLimit(limits.Chat, h.logger, dev)
	chat := api.Group("/chat")
	{
		chat.POST("/message", chatLimit, h.HandleMessage)
		chat.GET("/conversation/:id", h.GetConversation)
		chat.GET("/conversation/:id/history", h.GetMessages)
		chat.PUT("/conversation/:id/status", chatLimit, h.UpdateConversation)
		chat.GET("/conversations/user/:userId", h.GetConversations)
		chat.GET("/stats", h.ChatStats)
	}

	voiceLimit := RateLimit(limits.Voice, h.logger, dev)
	v := api.Group("/voice")
	{
		v.POST("/synthesize", voiceLimit, h.Synthesize)
		v.POST("/chat-and-speak", voiceLimit, h.ChatAndSpeak)
		v.GET("/voices", h.Voices)
		v.GET("/settings/presets", h.VoicePresets)
		v.GET("/stats", h.VoiceStats)
	}

	props := api.Group("/properties")
	{
		props.GET("/search", h.SearchProperties)
		props.GET("/market-analysis", h.MarketAnalysis)
		props.GET("/stats", h.PropertyStats)
		props.POST("/:id/showings", chatLimit, h.ScheduleShowing)
	}
	api.GET("/agents", h.Agents)
	api.GET("/agents/:id", h.Agent)

	return r, nil
}
