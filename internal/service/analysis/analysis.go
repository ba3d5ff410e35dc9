// Package analysis requests structured scores for a finished interview.
package analysis

import (
	"context"
	"strings"

	"interviewprep/internal/apperr"
	"interviewprep/internal/models"

	"go.uber.org/zap"
)

const serviceName = "analysis"

// Request is the transcript and metadata sent for scoring.
type Request struct {
	SessionID       string             `json:"sessionId"`
	InterviewType   string             `json:"interviewType"`
	Transcript      []models.Utterance `json:"transcript"`
	DurationSeconds int                `json:"duration,omitempty"`
}

// Envelope is the wire shape of an analysis response.
type Envelope struct {
	Success  bool     `json:"success"`
	Analysis *Payload `json:"analysis,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type Payload struct {
	Score          int               `json:"score"`
	Communication  int               `json:"communication"`
	Technical      int               `json:"technical"`
	Confidence     int               `json:"confidence"`
	ProblemSolving int               `json:"problemSolving"`
	Strengths      []string          `json:"strengths"`
	Improvements   []string          `json:"improvements"`
	Feedback       string            `json:"feedback"`
	Questions      []QuestionPayload `json:"questions"`
}

type QuestionPayload struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Feedback  string `json:"feedback"`
	Score     int    `json:"score"`
	Clarity   int    `json:"clarity"`
	Relevance int    `json:"relevance"`
	Depth     int    `json:"depth"`
}

// Result is the unsaved analysis plus its question breakdown.
type Result struct {
	Analysis  models.AnalysisResult
	Questions []models.QuestionRecord
}

// Backend produces an envelope for a request. Transport failures are
// returned as *apperr.UpstreamError.
type Backend interface {
	Analyze(ctx context.Context, req Request) (*Envelope, error)
}

// Requestor validates input, calls the backend once and converts the envelope.
// It never touches the data store.
type Requestor struct {
	backend Backend
	log     *zap.SugaredLogger
}

func NewRequestor(backend Backend, log *zap.SugaredLogger) *Requestor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Requestor{backend: backend, log: log}
}

// Analyze scores one session. No retries are attempted.
func (r *Requestor) Analyze(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, apperr.Invalid("session_id", "is required")
	}
	if len(req.Transcript) == 0 {
		return nil, apperr.Invalid("transcript", "must not be empty")
	}
	if r.backend == nil {
		return nil, apperr.Upstream(serviceName, 0, "analysis service not configured")
	}

	env, err := r.backend.Analyze(ctx, req)
	if err != nil {
		r.log.Errorf("analysis for session %s failed: %v", req.SessionID, err)
		return nil, err
	}
	if env == nil || !env.Success {
		msg := ""
		if env != nil {
			msg = env.Error
		}
		if msg == "" {
			msg = "analysis response missing success marker"
		}
		r.log.Errorf("analysis for session %s rejected: %s", req.SessionID, msg)
		return nil, apperr.Upstream(serviceName, 0, msg)
	}
	if env.Analysis == nil {
		return nil, apperr.Upstream(serviceName, 0, "analysis response missing payload")
	}
	return toResult(req, env.Analysis), nil
}

func toResult(req Request, p *Payload) *Result {
	res := &Result{
		Analysis: models.AnalysisResult{
			SessionID:     req.SessionID,
			InterviewType: req.InterviewType,
			Scores: models.Scores{
				Overall:        p.Score,
				Communication:  p.Communication,
				Technical:      p.Technical,
				Confidence:     p.Confidence,
				ProblemSolving: p.ProblemSolving,
			}.Clamp(),
			Strengths:       nonNil(p.Strengths),
			Improvements:    nonNil(p.Improvements),
			Feedback:        p.Feedback,
			DurationSeconds: req.DurationSeconds,
		},
	}
	for _, q := range p.Questions {
		res.Questions = append(res.Questions, models.QuestionRecord{
			QuestionText:   q.Question,
			UserAnswer:     q.Answer,
			Feedback:       q.Feedback,
			Score:          clamp(q.Score),
			ClarityScore:   clamp(q.Clarity),
			RelevanceScore: clamp(q.Relevance),
			DepthScore:     clamp(q.Depth),
		})
	}
	return res
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
