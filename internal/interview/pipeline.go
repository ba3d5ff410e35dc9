package interview

import (
	"context"
	"fmt"

	"interviewprep/internal/apperr"
	"interviewprep/internal/models"
	"interviewprep/internal/service/analysis"

	"go.uber.org/zap"
)

// Stage names one step of the termination pipeline.
type Stage string

const (
	StageAbuse     Stage = "abuse"
	StageArchive   Stage = "archive"
	StageAnalyze   Stage = "analyze"
	StagePersist   Stage = "persist"
	StageQuestions Stage = "questions"
)

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Notice is the user-facing outcome of a termination.
type Notice string

const (
	NoticeNone           Notice = ""
	NoticeTooShort       Notice = "too_short"
	NoticeAnalysisFailed Notice = "analysis_failed"
	NoticePersistFailed  Notice = "persist_failed"
)

// Message is the text shown for the notice.
func (n Notice) Message() string {
	switch n {
	case NoticeTooShort:
		return "Interview too short for analysis. Speak a little longer next time."
	case NoticeAnalysisFailed:
		return "Analysis failed, please try again."
	case NoticePersistFailed:
		return "Your analysis could not be saved, please try again."
	}
	return ""
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

type Persister interface {
	Save(ctx context.Context, a models.AnalysisResult) (*models.AnalysisResult, error)
	SaveInterviewQuestionsData(ctx context.Context, analysisID string, questions []models.QuestionRecord) ([]models.QuestionRecord, error)
}

type AbuseRecorder interface {
	RecordEarlyExit(ctx context.Context, userID int64) (models.AbuseState, error)
}

// RecordingSink accepts a finished capture for background upload.
type RecordingSink interface {
	Submit(ctx context.Context, analysisID string, blob *models.RecordingBlob) bool
}

type SessionArchiver interface {
	FinishSession(ctx context.Context, se models.Session) error
}

// Outcome is what one run of the pipeline produced. Err holds the first
// stage failure that changed the outcome; logged-only failures are in Warnings.
type Outcome struct {
	Session         models.Session          `json:"session"`
	Classification  Classification          `json:"classification"`
	Notice          Notice                  `json:"notice,omitempty"`
	Abuse           *models.AbuseState      `json:"abuse,omitempty"`
	Analysis        *models.AnalysisResult  `json:"analysis,omitempty"`
	Questions       []models.QuestionRecord `json:"questions,omitempty"`
	RecordingQueued bool                    `json:"recording_queued"`
	Duplicate       bool                    `json:"duplicate,omitempty"`
	Err             error                   `json:"-"`
	Warnings        []*StageError           `json:"-"`
}

// Pipeline runs classify, abuse, archive, analyze, persist, questions and
// recording in that order for one terminated session.
type Pipeline struct {
	classifier Classifier
	abuse      AbuseRecorder
	archive    SessionArchiver
	analyzer   Analyzer
	persister  Persister
	recordings RecordingSink
	log        *zap.SugaredLogger
}

type PipelineDeps struct {
	Classifier Classifier
	Abuse      AbuseRecorder
	Archive    SessionArchiver
	Analyzer   Analyzer
	Persister  Persister
	Recordings RecordingSink
	Log        *zap.SugaredLogger
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		classifier: deps.Classifier,
		abuse:      deps.Abuse,
		archive:    deps.Archive,
		analyzer:   deps.Analyzer,
		persister:  deps.Persister,
		recordings: deps.Recordings,
		log:        log,
	}
}

// Run processes a frozen session. It must be called once per session.
func (p *Pipeline) Run(ctx context.Context, final models.Session, blob *models.RecordingBlob) *Outcome {
	out := &Outcome{}

	out.Classification = p.classify(final)
	final.Verdict = out.Classification.Verdict
	out.Session = final

	if final.Verdict == models.VerdictTooShort {
		out.Notice = NoticeTooShort
		if st, err := p.recordEarlyExit(ctx, final.UserID); err != nil {
			p.warn(out, StageAbuse, err)
		} else {
			out.Abuse = st
		}
	}

	if err := p.archiveSession(ctx, final); err != nil {
		p.warn(out, StageArchive, err)
	}
	if final.Verdict != models.VerdictEligible {
		return out
	}

	res, err := p.analyze(ctx, final)
	if err != nil {
		out.Notice = NoticeAnalysisFailed
		out.Err = &StageError{Stage: StageAnalyze, Err: err}
		return out
	}
	// unsaved result stays visible when persistence fails
	out.Analysis = &res.Analysis

	stored, err := p.persister.Save(ctx, res.Analysis)
	if err != nil {
		out.Notice = NoticePersistFailed
		out.Err = &StageError{Stage: StagePersist, Err: err}
		p.log.Errorf("persist analysis for session %s failed: %v", final.ID, err)
		return out
	}
	out.Analysis = stored

	if len(res.Questions) > 0 {
		questions, err := p.persister.SaveInterviewQuestionsData(ctx, stored.ID, res.Questions)
		if err != nil {
			p.warn(out, StageQuestions, err)
		} else {
			out.Questions = questions
		}
	}

	if p.recordings != nil && !blob.Empty() {
		out.RecordingQueued = p.recordings.Submit(ctx, stored.ID, blob)
	}
	return out
}

func (p *Pipeline) classify(final models.Session) Classification {
	return p.classifier.Classify(JoinText(final.Transcript))
}

func (p *Pipeline) recordEarlyExit(ctx context.Context, userID int64) (*models.AbuseState, error) {
	if p.abuse == nil {
		return nil, nil
	}
	st, err := p.abuse.RecordEarlyExit(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (p *Pipeline) archiveSession(ctx context.Context, final models.Session) error {
	if p.archive == nil {
		return nil
	}
	return p.archive.FinishSession(ctx, final)
}

func (p *Pipeline) analyze(ctx context.Context, final models.Session) (*analysis.Result, error) {
	if p.analyzer == nil {
		return nil, apperr.Upstream("analysis", 0, "analysis service not configured")
	}
	return p.analyzer.Analyze(ctx, analysis.Request{
		SessionID:       final.ID,
		InterviewType:   final.InterviewType,
		Transcript:      final.Transcript,
		DurationSeconds: final.DurationSeconds,
	})
}

func (p *Pipeline) warn(out *Outcome, stage Stage, err error) {
	se := &StageError{Stage: stage, Err: err}
	out.Warnings = append(out.Warnings, se)
	p.log.Warnf("session %s: %v", out.Session.ID, se)
}
