package api

import (
	"errors"
	"net/http"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
	RetryAfter int      `json:"retryAfter,omitempty"`
}

type errorResponse struct {
	Success   bool      `json:"success"`
	Error     errorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

func publicMessage(err error, development bool) string {
	if development {
		return err.Error()
	}
	var e *apperr.Error
	if apperr.Public(err) && errors.As(err, &e) {
		return e.Message
	}
	return "An internal error occurred. Please contact support with the request id."
}

// respondError writes the error envelope. Outside development, persistence,
// upstream and unclassified errors are reduced to a generic message.
func respondError(c *gin.Context, err error, development bool) {
	body := errorBody{
		Code:    apperr.KindOf(err).String(),
		Message: publicMessage(err, development),
		Details: apperr.DetailsOf(err),
	}
	if ra := apperr.RetryAfterOf(err); ra > 0 {
		body.RetryAfter = int(ra.Seconds() + 0.999)
	}
	c.JSON(apperr.HTTPStatus(err), errorResponse{Error: body, RequestID: requestIDFrom(c)})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIDFrom(c)),
			zap.Error(err))
	}
	respondError(c, err, h.cfg.Server.Development())
}

func ok(c *gin.Context, payload gin.H) {
	payload["success"] = true
	payload["requestId"] = requestIDFrom(c)
	c.JSON(http.StatusOK, payload)
}

// uuidParam reads the named path parameter and checks it is a canonical
// 36-character UUID.
func uuidParam(c *gin.Context, name string) (string, error) {
	v := c.Param(name)
	if len(v) != 36 || uuid.Validate(v) != nil {
		return "", apperr.Validation("invalid "+name, name+" must be a UUID")
	}
	return v, nil
}

// bindingError converts a gin binding failure into a validation error.
func bindingError(err error) error {
	return apperr.Validation("invalid request body", err.Error())
}
