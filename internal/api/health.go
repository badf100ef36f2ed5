package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/RichardoC/realty-assistant/internal/version"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

func (h *Handler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.db.Ping(ctx)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   h.cfg.Server.ServiceVersion,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Seconds(),
		"requestId": requestIDFrom(c),
	})
}

// HealthDetailed reports every dependency. A failed database ping makes the
// service degraded and the response 503.
func (h *Handler) HealthDetailed(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	dbCheck := gin.H{"status": "up", "pool": h.db.Health()}
	if err := h.ping(c.Request.Context()); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
		dbCheck["status"] = "down"
		dbCheck["error"] = publicMessage(err, h.cfg.Server.Development())
	}

	voiceStatus := "configured"
	if !h.voice.Configured() {
		voiceStatus = "not_configured"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(code, gin.H{
		"status":      status,
		"version":     version.Info(),
		"environment": h.cfg.Server.Environment,
		"timestamp":   time.Now().UTC(),
		"uptime":      time.Since(h.started).Seconds(),
		"checks": gin.H{
			"database": dbCheck,
			"voice":    gin.H{"status": voiceStatus},
			"ai":       gin.H{"provider": h.cfg.AI.Provider, "model": h.cfg.AI.Model},
		},
		"runtime": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"heapAlloc":  mem.HeapAlloc,
		},
		"service":   h.assistant.GetServiceStats(),
		"requestId": requestIDFrom(c),
	})
}

func (h *Handler) Readiness(c *gin.Context) {
	if err := h.ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "requestId": requestIDFrom(c)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "requestId": requestIDFrom(c)})
}

func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true, "requestId": requestIDFrom(c)})
}
