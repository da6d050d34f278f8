package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"slides-server/internal/models"
)

// editSlide applies one instruction to one slide part.
func (h *Handler) editSlide(c *gin.Context) {
	var req models.EditSlideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	slide, err := h.editor.EditSlide(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	editsAppliedTotal.WithLabelValues("single").Inc()
	c.JSON(http.StatusOK, models.EditSlideResponse{Slide: slide})
}

// batchEdit applies up to MaxBatchEdits instructions against one outline.
func (h *Handler) batchEdit(c *gin.Context) {
	var req models.BatchEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	slides, err := h.editor.ApplyBatch(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	editsAppliedTotal.WithLabelValues("batch").Inc()
	c.JSON(http.StatusOK, models.BatchEditResponse{Slides: slides})
}
