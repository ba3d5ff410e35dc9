package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"interviewprep/internal/models"
)

func (h *Handler) listAnalyses(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list, err := h.Results.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = make([]models.AnalysisResult, 0)
	}
	c.JSON(http.StatusOK, gin.H{"analyses": list})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	aid := c.Param("aid")
	a, err := h.Results.Get(c.Request.Context(), userID, aid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	questions, err := h.Results.Questions(c.Request.Context(), userID, aid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if questions == nil {
		questions = make([]models.QuestionRecord, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"analysis":  a,
		"questions": questions,
	})
}

func (h *Handler) getRecordingURL(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if h.Links == nil {
		unavailable(c, "recording storage")
		return
	}
	path, err := h.Results.RecordingPath(c.Request.Context(), userID, c.Param("aid"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording for this analysis"})
		return
	}
	url, err := h.Links.GetRecordingURL(c.Request.Context(), path)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// uploadRecording attaches a recording to an existing analysis in the background.
func (h *Handler) uploadRecording(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if h.Uploads == nil {
		unavailable(c, "recording storage")
		return
	}
	aid := c.Param("aid")
	if _, err := h.Results.Get(c.Request.Context(), userID, aid); err != nil {
		h.writeError(c, err)
		return
	}
	if err := c.Request.ParseMultipartForm(maxRecordingBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	blob, err := readRecording(c, "recording")
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errRecordingTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if blob.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recording is required"})
		return
	}
	if !h.Uploads.Submit(c.Request.Context(), aid, blob) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// serveRecording streams a locally stored recording behind a signed link.
func (h *Handler) serveRecording(c *gin.Context) {
	if h.LocalFiles == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	sig := strings.TrimSpace(c.Query("sig"))
	if sig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sig is required"})
		return
	}
	path, err := h.LocalFiles.Resolve(sig)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.File(path)
}
