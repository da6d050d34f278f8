package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slides-server/internal/models"
)

// login issues a token pair for an email identity. There is no password;
// a production deployment would gate this behind a magic-link delivery.
func (h *Handler) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	tokens, err := h.tokens.IssuePair(req.Email)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	tokenPairsIssuedTotal.Inc()
	h.logger.Info("issued token pair without magic-link delivery",
		zap.String("email", req.Email))

	c.JSON(http.StatusOK, tokens)
}

// refreshTokens exchanges a valid refresh token for a new pair.
func (h *Handler) refreshTokens(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	claims, err := h.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	tokens, err := h.tokens.IssuePair(claims.Subject)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}
