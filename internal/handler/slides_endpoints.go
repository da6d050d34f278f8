package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"slides-server/internal/models"
)

const contentTypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// generateOutline produces a slide plan from a prompt. The response body is
// the plain slide array.
func (h *Handler) generateOutline(c *gin.Context) {
	var req models.ChatGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.outline.Generate(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	source := "model"
	if resp.Stub {
		source = "stub"
	}
	outlinesGeneratedTotal.WithLabelValues(source).Inc()

	c.JSON(http.StatusOK, resp.Slides)
}

// buildDeck queues an asynchronous deck build. The body is either a plain
// slide array (legacy clients) or {slides, sessionId}; sessionId may also
// arrive as a query parameter.
func (h *Handler) buildDeck(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Failed to read request body"})
		return
	}

	var req models.BuildRequest
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &req.Slides)
	} else {
		err = json.Unmarshal(trimmed, &req)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("sessionId")
	}

	if len(req.Slides) == 0 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: "slides must not be empty"})
		return
	}
	if err := models.ValidateSlides(req.Slides); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error()})
		return
	}

	jobID, err := h.jobs.StartBuild(req.Slides, req.SessionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	buildsAcceptedTotal.Inc()
	h.logger.Info("deck build queued",
		zap.String("jobId", jobID.String()),
		zap.String("sessionId", req.SessionID),
		zap.Int("slides", len(req.Slides)),
	)

	c.JSON(http.StatusOK, models.BuildAcceptedResponse{
		JobID:  jobID,
		Status: models.JobStatusPending,
	})
}

// jobStatus is the polling fallback for clients without a live websocket.
func (h *Handler) jobStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid job id"})
		return
	}

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// downloadDeck streams the finished PPTX as an attachment.
func (h *Handler) downloadDeck(c *gin.Context) {
	jobID, err := uuid.Parse(c.Query("jobId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid job id"})
		return
	}

	path, err := h.jobs.ResultPath(jobID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, models.ErrorResponse{Error: "File not found"})
		return
	}

	downloadsTotal.Inc()

	c.Header("Content-Type", contentTypePPTX)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "presentation-"+jobID.String()+".pptx"))
	c.File(path)
}

// listProviders reports configured image backends. Availability comes from
// configuration only; no provider is probed.
func (h *Handler) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}
