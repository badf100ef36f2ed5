package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/ratelimit"
	"github.com/RichardoC/realty-assistant/internal/trace"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestIDKey = "requestId"

// RequestID honours an inbound X-Request-ID or generates one, and stores it on
// the gin context, the request context and the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(trace.Header)
		if id == "" || len(id) > 128 {
			id = trace.NewID()
		}
		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(trace.WithRequestID(c.Request.Context(), id))
		c.Header(trace.Header, id)
		c.Next()
	}
}

// Detach stops a client disconnect from cancelling the handler's work.
// Persistence and voice calls run to completion and their results are
// dropped if nobody is left to read them. Context values such as the request
// id are kept.
func Detach() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(context.WithoutCancel(c.Request.Context()))
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Compliance sets the fixed compliance headers on every response.
func Compliance(cfg config.ServerConfig) gin.HandlerFunc {
	audit := strconv.FormatBool(cfg.AuditEnabled)
	return func(c *gin.Context) {
		c.Header("X-Compliance-Level", cfg.ComplianceLevel)
		c.Header("X-Service-Version", cfg.ServiceVersion)
		c.Header("X-Audit-Enabled", audit)
		c.Next()
	}
}

// AccessLog logs one line per request after it completes.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", requestIDFrom(c)),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 error body.
func Recovery(logger *zap.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked",
					zap.Any("panic", r),
					zap.String("request_id", requestIDFrom(c)),
					zap.ByteString("stack", debug.Stack()))
				respondError(c, errors.New("internal server error"), development)
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RateLimit rejects requests from a client address that exhausted limiter's
// window. Limiter failures are logged and the request is let through.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("request_id", requestIDFrom(c)))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			respondError(c, apperr.RateLimited(d.RetryAfter), development)
			c.Abort()
			return
		}
		c.Next()
	}
}
