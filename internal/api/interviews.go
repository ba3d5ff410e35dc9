package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"interviewprep/internal/apperr"
	"interviewprep/internal/interview"
	"interviewprep/internal/models"
)

var errRecordingTooLarge = errors.New("recording exceeds 200 MB")

const (
	maxRecordingBytes = 200 << 20 // 200 MB
	maxAudioChunk     = 10 << 20  // 10 MB
)

type startInterviewRequest struct {
	InterviewType string `json:"interview_type" binding:"required"`
}

func (h *Handler) startInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req startInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interview_type is required"})
		return
	}
	se, err := h.Interviews.Start(c.Request.Context(), userID, req.InterviewType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"sessionId":     se.ID(),
		"userId":        se.UserID(),
		"interviewType": se.InterviewType(),
		"startedAt":     se.StartedAt(),
	})
}

func (h *Handler) getInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	se, err := h.Interviews.Snapshot(c.Request.Context(), userID, c.Param("sid"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": se})
}

type utteranceRequest struct {
	Speaker string `json:"speaker" binding:"required,speaker"`
	Text    string `json:"text" binding:"required"`
}

func (h *Handler) appendUtterance(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req utteranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "speaker must be \"ai\" or \"user\" and text is required"})
		return
	}
	u, err := h.Interviews.Append(userID, c.Param("sid"), models.Speaker(req.Speaker), req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"utterance": u})
}

// transcribeIntoSession turns a raw audio chunk into a user utterance.
func (h *Handler) transcribeIntoSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
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
	resp := gin.H{"transcript": tr}
	if strings.TrimSpace(tr.Transcript) != "" {
		u, err := h.Interviews.Append(userID, c.Param("sid"), models.SpeakerUser, tr.Transcript)
		if err != nil {
			h.writeError(c, err)
			return
		}
		resp["utterance"] = u
	}
	c.JSON(http.StatusOK, resp)
}

type endInterviewRequest struct {
	Reason          string `json:"reason" form:"reason" binding:"omitempty,oneof=completed early-exit error"`
	DurationSeconds int    `json:"duration_seconds" form:"duration_seconds" binding:"gte=0"`
}

// endInterview accepts JSON or a multipart form carrying the recording.
func (h *Handler) endInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var (
		req  endInterviewRequest
		blob *models.RecordingBlob
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(maxRecordingBytes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reason or duration"})
			return
		}
		var err error
		blob, err = readRecording(c, "recording")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reason or duration"})
			return
		}
	}

	// a client hanging up must not abort analysis or persistence
	ctx := context.WithoutCancel(c.Request.Context())
	out, err := h.Interviews.End(ctx, userID, c.Param("sid"), interview.EndRequest{
		Reason:          models.TerminationReason(req.Reason),
		DurationSeconds: req.DurationSeconds,
		Recording:       blob,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomeBody(out))
}

func outcomeBody(out *interview.Outcome) gin.H {
	body := gin.H{"outcome": out}
	if msg := out.Notice.Message(); msg != "" {
		body["message"] = msg
	}
	if out.Err != nil {
		body["error"] = out.Err.Error()
		body["code"] = apperr.Code(out.Err)
		var stageErr *interview.StageError
		if errors.As(out.Err, &stageErr) {
			body["stage"] = string(stageErr.Stage)
			body["error"] = stageErr.Err.Error()
		}
		// upstream text is passed through verbatim
		var upstream *apperr.UpstreamError
		if errors.As(out.Err, &upstream) {
			body["error"] = upstream.Message
		}
	}
	return body
}

func readAudioBody(c *gin.Context) ([]byte, string, bool) {
	audio, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioChunk+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read audio failed"})
		return nil, "", false
	}
	if len(audio) > maxAudioChunk {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio chunk too large"})
		return nil, "", false
	}
	if len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio body is required"})
		return nil, "", false
	}
	return audio, c.ContentType(), true
}

// readRecording loads an optional multipart file; a missing field is not an error.
func readRecording(c *gin.Context, field string) (*models.RecordingBlob, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	if fh.Size > maxRecordingBytes {
		return nil, errRecordingTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return &models.RecordingBlob{Data: data, MimeType: mimeType}, nil
}
