package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Error codes returned next to the message so clients need not parse text.
const (
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeSessionFull     = "session_full"
	CodeNotReady        = "not_ready"
	CodeConflict        = "conflict"
	CodeInvalidArgument = "invalid_argument"
	CodeRateLimited     = "rate_limited"
	CodeForbidden       = "forbidden"
	CodeInternal        = "internal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusNotFound, CodeNotReady
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, domain.ErrSessionFull):
		return http.StatusConflict, CodeSessionFull
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, CodeInvalidArgument
	}
	return http.StatusInternalServerError, CodeInternal
}

// abortWithError responds with the status mapped from err. Poll misses are
// routine and only logged at debug.
func abortWithError(c *gin.Context, err error) {
	status, code := statusOf(err)
	logger := zerolog.Ctx(c.Request.Context())
	ev := logger.Warn()
	switch {
	case code == CodeNotReady:
		ev = logger.Debug()
	case status >= http.StatusInternalServerError:
		ev = logger.Error()
	}
	ev.Err(err).Str("code", code).Int("status", status).Msg("request failed")
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func abortWithStatus(c *gin.Context, status int, code, message string) {
	zerolog.Ctx(c.Request.Context()).Warn().Str("code", code).Int("status", status).Msg(message)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}
