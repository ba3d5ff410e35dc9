package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"interviewprep/internal/service/analysis"
	"interviewprep/internal/service/resume"
	"interviewprep/internal/service/speech"
)

const maxResumeBytes = 10 << 20 // 10 MB

var resumeExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".txt":  true,
	".md":   true,
}

func (h *Handler) synthesize(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if h.Speech == nil {
		unavailable(c, "speech synthesis")
		return
	}
	var req speech.SynthesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	audio, err := h.Speech.Synthesize(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, audio)
}

func (h *Handler) transcribe(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if h.Speech == nil {
		unavailable(c, "transcription")
		return
	}
	audio, mimeType, ok := readAudioBody(c)
	if !ok {
		return
	}
	tr, err := h.Speech.Transcribe(c.Request.Context(), audio, mimeType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

// scanResume grades pasted text, or an uploaded document in field "file".
func (h *Handler) scanResume(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if h.Resume == nil {
		unavailable(c, "resume scanning")
		return
	}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req resume.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		res, err := h.Resume.Scan(c.Request.Context(), req)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	if err := c.Request.ParseMultipartForm(maxResumeBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxResumeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !resumeExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	dir := h.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create directory failed"})
		return
	}
	dest := filepath.Join(dir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}
	defer os.Remove(dest)

	res, err := h.Resume.ScanFile(c.Request.Context(), dest, c.PostForm("target_role"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// analyzeFunction exposes the model backend with the envelope wire shape so
// other instances can use this one as their remote analysis service.
func (h *Handler) analyzeFunction(c *gin.Context) {
	if h.Analysis == nil {
		c.JSON(http.StatusServiceUnavailable, analysis.Envelope{Success: false, Error: "analysis service not configured"})
		return
	}
	if h.FunctionKey != "" && !secretEqual(c.GetHeader("Authorization"), "Bearer "+h.FunctionKey) {
		c.JSON(http.StatusUnauthorized, analysis.Envelope{Success: false, Error: "invalid function key"})
		return
	}
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, analysis.Envelope{Success: false, Error: "invalid request body"})
		return
	}
	env := h.Analysis.Handle(c.Request.Context(), req)
	status := http.StatusOK
	if !env.Success {
		status = http.StatusInternalServerError
		if len(req.Transcript) == 0 {
			status = http.StatusBadRequest
		}
	}
	c.JSON(status, env)
}
