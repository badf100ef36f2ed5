// Package apperr defines the error taxonomy shared by the services and the
// HTTP boundary. Services return *Error values (possibly wrapped); the HTTP
// layer maps them to status codes with HTTPStatus.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindPersistence
	KindUpstream
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindPersistence:
		return "PERSISTENCE_ERROR"
	case KindUpstream:
		return "UPSTREAM_SERVICE_ERROR"
	case KindRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is the concrete error type returned by the services.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Details holds individual violations for validation errors.
	Details []string
	// RetryAfter is set for rate limit errors.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Details, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or out-of-range input.
func Validation(message string, details ...string) error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// NotFound reports a missing conversation, property, agent or similar.
func NotFound(resource, id string) error {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return &Error{Kind: KindNotFound, Message: msg}
}

// Persistence wraps a database failure. Persistence errors are never retried.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Message: "database operation failed", Err: err}
}

// Upstream wraps a failure of an external collaborator such as the voice API.
func Upstream(service string, err error) error {
	return &Error{Kind: KindUpstream, Op: service, Message: "upstream service failed", Err: err}
}

// RateLimited reports that a caller exhausted its window.
func RateLimited(retryAfter time.Duration) error {
	return &Error{Kind: KindRateLimit, Message: "too many requests", RetryAfter: retryAfter}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound is shorthand for Is(err, KindNotFound).
func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the message of err is safe to show to clients
// outside development mode.
func Public(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindRateLimit:
		return true
	}
	return false
}

// DetailsOf returns validation details carried by err, if any.
func DetailsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// RetryAfterOf returns the retry-after hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
