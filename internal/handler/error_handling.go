package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slides-server/internal/models"
)

// handleServiceError translates service sentinels into HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	if rl, ok := models.AsRateLimited(err); ok {
		if rl.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{Error: "Too many requests, please retry later"})
		return
	}

	var statusCode int
	var message string

	switch {
	case errors.Is(err, models.ErrPromptRequired),
		errors.Is(err, models.ErrSlideCountRange),
		errors.Is(err, models.ErrModelNotAllowed),
		errors.Is(err, models.ErrProviderUnknown),
		errors.Is(err, models.ErrProviderUnavailable),
		errors.Is(err, models.ErrEditInvalid):
		statusCode = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, models.ErrUpstreamUnavailable):
		statusCode = http.StatusBadGateway
		message = "Upstream model is unavailable"
	case errors.Is(err, models.ErrJobLimitReached):
		statusCode = http.StatusTooManyRequests
		message = "Too many active jobs, please retry later"
	case errors.Is(err, models.ErrJobNotFound), errors.Is(err, models.ErrResultNotReady):
		statusCode = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, models.ErrTokenExpired):
		statusCode = http.StatusUnauthorized
		message = "Token has expired"
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenMalformed):
		statusCode = http.StatusUnauthorized
		message = "Token is invalid or malformed"
	default:
		zap.L().Error("unhandled service error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal error occurred"
	}

	c.AbortWithStatusJSON(statusCode, models.ErrorResponse{Error: message})
}
