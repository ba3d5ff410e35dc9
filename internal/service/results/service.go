// Package results persists analysis results and their question breakdowns.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/auth"
	"interviewprep/internal/feed"
	"interviewprep/internal/models"
	"interviewprep/internal/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when an analysis does not exist for the caller.
var ErrNotFound = errors.New("analysis not found")

// Service is the Result Persister plus cached reads.
type Service struct {
	db        *sql.DB
	cache     *redis.Client
	cacheTTL  time.Duration
	publisher feed.Publisher
	log       *zap.SugaredLogger
	group     singleflight.Group
	gens      listGenerations
	now       func() time.Time
}

// NewService builds the persister. cache and publisher may be nil.
func NewService(db *sql.DB, cache *redis.Client, cacheTTL time.Duration, publisher feed.Publisher, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if publisher == nil {
		publisher = feed.Nop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		db:        db,
		cache:     cache,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Save inserts one analysis row owned by the caller's identity. The user id
// on the input is ignored; re-analysis always creates a new row.
func (s *Service) Save(ctx context.Context, a models.AnalysisResult) (*models.AnalysisResult, error) {
	id, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, apperr.ErrAuthRequired
	}
	if strings.TrimSpace(a.SessionID) == "" {
		return nil, apperr.Invalid("session_id", "is required")
	}

	now := s.now()
	a.ID = uuid.NewString()
	a.UserID = id.UserID
	a.Scores = a.Scores.Clamp()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	if a.Improvements == nil {
		a.Improvements = []string{}
	}
	strengths, err := json.Marshal(a.Strengths)
	if err != nil {
		return nil, fmt.Errorf("encode strengths: %w", err)
	}
	improvements, err := json.Marshal(a.Improvements)
	if err != nil {
		return nil, fmt.Errorf("encode improvements: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interview_analyses (
			id, user_id, session_id, interview_type,
			overall_score, communication_score, technical_score, confidence_score, problem_solving_score,
			strengths, improvements, feedback, duration_seconds, recording_url, recording_path, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.SessionID, a.InterviewType,
		a.Scores.Overall, a.Scores.Communication, a.Scores.Technical, a.Scores.Confidence, a.Scores.ProblemSolving,
		string(strengths), string(improvements), a.Feedback, a.DurationSeconds, a.RecordingURL, a.RecordingPath, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}
	// Other instances drop their copy through the change feed.
	s.invalidate(ctx, a.UserID)
	s.publish(ctx, feed.TableAnalyses, a.UserID, a.ID)
	return &a, nil
}

// SaveInterviewQuestionsData inserts the batch with question_order = index+1.
// Calling it twice for one analysis duplicates rows.
func (s *Service) SaveInterviewQuestionsData(ctx context.Context, analysisID string, questions []models.QuestionRecord) ([]models.QuestionRecord, error) {
	id, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, apperr.ErrAuthRequired
	}
	if len(questions) == 0 {
		return []models.QuestionRecord{}, nil
	}
	var owned bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM interview_analyses WHERE id = ? AND user_id = ?)`,
		analysisID, id.UserID,
	).Scan(&owned); err != nil {
		return nil, fmt.Errorf("verify analysis: %w", err)
	}
	if !owned {
		return nil, ErrNotFound
	}

	now := s.now()
	out := make([]models.QuestionRecord, len(questions))
	var (
		placeholders []string
		args         []any
	)
	for i, q := range questions {
		q.ID = uuid.NewString()
		q.AnalysisID = analysisID
		q.QuestionOrder = i + 1
		q.CreatedAt = now
		out[i] = q
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, q.ID, q.AnalysisID, q.QuestionOrder, q.QuestionText, q.UserAnswer, q.Feedback,
			q.Score, q.ClarityScore, q.RelevanceScore, q.DepthScore, q.CreatedAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_questions (
			id, analysis_id, question_order, question_text, user_answer, feedback,
			score, clarity_score, relevance_score, depth_score, created_at
		) VALUES `+strings.Join(placeholders, ", "),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("insert questions: %w", err)
	}
	s.publish(ctx, feed.TableQuestions, id.UserID, analysisID)
	return out, nil
}

// UpdateAnalysisWithRecording links an uploaded recording onto the analysis.
func (s *Service) UpdateAnalysisWithRecording(ctx context.Context, analysisID, url, path string) error {
	id, ok := auth.UserFromContext(ctx)
	if !ok {
		return apperr.ErrAuthRequired
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_analyses SET recording_url = ?, recording_path = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		url, path, s.now(), analysisID, id.UserID,
	)
	if err != nil {
		return fmt.Errorf("link recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, id.UserID)
	return nil
}

// Get loads one analysis owned by userID.
func (s *Service) Get(ctx context.Context, userID int64, analysisID string) (*models.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, selectAnalysis+` WHERE id = ? AND user_id = ?`, analysisID, userID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// Questions returns the breakdown of an analysis ordered by question_order.
func (s *Service) Questions(ctx context.Context, userID int64, analysisID string) ([]models.QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.analysis_id, q.question_order, q.question_text, q.user_answer, q.feedback,
			q.score, q.clarity_score, q.relevance_score, q.depth_score, q.created_at
		 FROM interview_questions q
		 JOIN interview_analyses a ON a.id = q.analysis_id
		 WHERE q.analysis_id = ? AND a.user_id = ?
		 ORDER BY q.question_order ASC`,
		analysisID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]models.QuestionRecord, 0)
	for rows.Next() {
		var q models.QuestionRecord
		if err := rows.Scan(&q.ID, &q.AnalysisID, &q.QuestionOrder, &q.QuestionText, &q.UserAnswer, &q.Feedback,
			&q.Score, &q.ClarityScore, &q.RelevanceScore, &q.DepthScore, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// RecordingPath returns the stored object key for an analysis, or "" when none.
func (s *Service) RecordingPath(ctx context.Context, userID int64, analysisID string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT recording_path FROM interview_analyses WHERE id = ? AND user_id = ?`,
		analysisID, userID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get recording path: %w", err)
	}
	return path, nil
}

func (s *Service) listFromDB(ctx context.Context, userID int64) ([]models.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx, selectAnalysis+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	list := make([]models.AnalysisResult, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (s *Service) publish(ctx context.Context, table string, userID int64, rowID string) {
	ev := feed.Event{Table: table, Type: feed.EventInsert, UserID: userID, RowID: rowID, At: s.now()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warnf("publish %s insert for user %d failed: %v", table, userID, err)
	}
}

const selectAnalysis = `SELECT id, user_id, session_id, interview_type,
	overall_score, communication_score, technical_score, confidence_score, problem_solving_score,
	strengths, improvements, feedback, duration_seconds, recording_url, recording_path, created_at, updated_at
	FROM interview_analyses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*models.AnalysisResult, error) {
	var (
		a            models.AnalysisResult
		strengths    string
		improvements string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.SessionID, &a.InterviewType,
		&a.Scores.Overall, &a.Scores.Communication, &a.Scores.Technical, &a.Scores.Confidence, &a.Scores.ProblemSolving,
		&strengths, &improvements, &a.Feedback, &a.DurationSeconds, &a.RecordingURL, &a.RecordingPath, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Strengths = decodeList(strengths)
	a.Improvements = decodeList(improvements)
	return &a, nil
}

func decodeList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
