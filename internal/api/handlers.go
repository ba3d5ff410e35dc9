package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"interviewprep/internal/apperr"
	"interviewprep/internal/auth"
	"interviewprep/internal/feed"
	"interviewprep/internal/interview"
	"interviewprep/internal/models"
	"interviewprep/internal/service/account"
	"interviewprep/internal/service/analysis"
	"interviewprep/internal/service/resume"
	"interviewprep/internal/service/results"
	"interviewprep/internal/service/speech"
)

type AccountService interface {
	RegisterUser(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type InterviewManager interface {
	Start(ctx context.Context, userID int64, interviewType string) (*interview.Session, error)
	Snapshot(ctx context.Context, userID int64, sessionID string) (models.Session, error)
	Append(userID int64, sessionID string, speaker models.Speaker, text string) (models.Utterance, error)
	End(ctx context.Context, userID int64, sessionID string, req interview.EndRequest) (*interview.Outcome, error)
}

type ResultStore interface {
	List(ctx context.Context, userID int64) ([]models.AnalysisResult, error)
	Get(ctx context.Context, userID int64, analysisID string) (*models.AnalysisResult, error)
	Questions(ctx context.Context, userID int64, analysisID string) ([]models.QuestionRecord, error)
	RecordingPath(ctx context.Context, userID int64, analysisID string) (string, error)
}

type AbusePolicy interface {
	Get(ctx context.Context, userID int64) (models.AbuseState, error)
	Acknowledge(ctx context.Context, userID int64) (models.AbuseState, error)
	Reset(ctx context.Context, userID int64) (models.AbuseState, error)
}

type RecordingLinks interface {
	GetRecordingURL(ctx context.Context, path string) (string, error)
}

type RecordingQueue interface {
	Submit(ctx context.Context, analysisID string, blob *models.RecordingBlob) bool
}

// SignedFiles resolves playback signatures for locally stored recordings.
type SignedFiles interface {
	Resolve(sig string) (string, error)
}

type SpeechService interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*speech.Transcript, error)
	Synthesize(ctx context.Context, req speech.SynthesisRequest) (*speech.Audio, error)
}

type ResumeScanner interface {
	Scan(ctx context.Context, req resume.ScanRequest) (*resume.ScanResult, error)
	ScanFile(ctx context.Context, path, targetRole string) (*resume.ScanResult, error)
}

type AnalysisFunction interface {
	Handle(ctx context.Context, req analysis.Request) analysis.Envelope
}

// Deps lists the services the HTTP layer routes to. Optional ones may be nil
// and their routes answer 503.
type Deps struct {
	Auth       *auth.Service
	Accounts   AccountService
	Interviews InterviewManager
	Results    ResultStore
	Abuse      AbusePolicy
	Links      RecordingLinks
	Uploads    RecordingQueue
	LocalFiles SignedFiles
	Speech     SpeechService
	Resume     ResumeScanner
	Analysis   AnalysisFunction
	Feed       feed.Subscriber

	AdminToken     string
	FunctionKey    string
	AllowedOrigins []string
	UploadDir      string
	Log            *zap.SugaredLogger
}

// Handler wires HTTP routes to the interview services.
type Handler struct {
	Deps
	log *zap.SugaredLogger
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Deps) *Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("speaker", func(fl validator.FieldLevel) bool {
			return models.Speaker(fl.Field().String()).Valid()
		})
	}
	return &Handler{Deps: deps, log: log}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "code": "auth_required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.AdminToken == "" || !secretEqual(c.GetHeader("X-Admin-Token"), h.AdminToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
			return
		}
		c.Next()
	}
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "code": "auth_required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	api.POST("/functions/analyze-interview", h.analyzeFunction)
	api.GET("/recordings", h.serveRecording)

	admin := api.Group("/admin", h.requireAdmin())
	admin.POST("/users/:uid/abuse/reset", h.resetAbuse)

	authMW := h.Auth.Middleware()
	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.Auth.CSRFMiddleware())
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)

	userRoutes.POST("/interviews", h.startInterview)
	userRoutes.GET("/interviews/:sid", h.getInterview)
	userRoutes.POST("/interviews/:sid/utterances", h.appendUtterance)
	userRoutes.POST("/interviews/:sid/audio", h.transcribeIntoSession)
	userRoutes.POST("/interviews/:sid/end", h.endInterview)

	userRoutes.GET("/analyses", h.listAnalyses)
	userRoutes.GET("/analyses/:aid", h.getAnalysis)
	userRoutes.GET("/analyses/:aid/recording-url", h.getRecordingURL)
	userRoutes.POST("/analyses/:aid/recording", h.uploadRecording)

	userRoutes.GET("/abuse", h.getAbuse)
	userRoutes.POST("/abuse/acknowledge", h.acknowledgeAbuse)

	userRoutes.POST("/speech/synthesize", h.synthesize)
	userRoutes.POST("/speech/transcribe", h.transcribe)
	userRoutes.POST("/resume/scan", h.scanResume)

	userRoutes.GET("/feed", h.streamFeed)
}

// writeError maps service errors onto the shared error body.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	switch {
	case errors.Is(err, interview.ErrSessionNotFound),
		errors.Is(err, results.ErrNotFound),
		errors.Is(err, account.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, account.ErrUsernameTaken),
		errors.Is(err, interview.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, account.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperr.Code(err)})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not configured"})
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.Accounts.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	authToken, err := h.Auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.Auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.Auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.Auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.Accounts.DeleteUser(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.Auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.Auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.Auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.Auth.AuthCookieName(), h.Auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.Auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h *Handler) getAbuse(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	st, err := h.Abuse.Get(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"abuse": st})
}

func (h *Handler) acknowledgeAbuse(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	st, err := h.Abuse.Acknowledge(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"abuse": st})
}

func (h *Handler) resetAbuse(c *gin.Context) {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.Param("uid")), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	st, err := h.Abuse.Reset(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Infof("abuse state reset for user %d by admin", userID)
	c.JSON(http.StatusOK, gin.H{"abuse": st})
}
