package interview

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"interviewprep/internal/models"
)

// Store persists interview session rows.
type Store struct {
	db *sql.DB
}

// NewStore builds a session store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateSession inserts the session header at start time.
func (s *Store) CreateSession(ctx context.Context, se *models.Session) error {
	if se == nil || se.ID == "" {
		return errors.New("session id is required")
	}
	if se.UserID <= 0 {
		return errors.New("user_id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (id, user_id, interview_type, started_at, transcript) VALUES (?, ?, ?, ?, ?)`,
		se.ID, se.UserID, se.InterviewType, se.StartedAt, "[]",
	)
	if err != nil {
		return fmt.Errorf("create interview session: %w", err)
	}
	return nil
}

// FinishSession records the frozen transcript and termination outcome.
func (s *Store) FinishSession(ctx context.Context, se models.Session) error {
	transcript, err := json.Marshal(se.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET ended_at = ?, duration_seconds = ?, termination_reason = ?, verdict = ?, transcript = ?
		 WHERE id = ? AND user_id = ?`,
		se.EndedAt, se.DurationSeconds, string(se.TerminationReason), string(se.Verdict), string(transcript),
		se.ID, se.UserID,
	)
	if err != nil {
		return fmt.Errorf("finish interview session: %w", err)
	}
	return nil
}

// GetSession loads one session owned by the user. It returns sql.ErrNoRows when absent.
func (s *Store) GetSession(ctx context.Context, userID int64, sessionID string) (*models.Session, error) {
	var (
		se         models.Session
		endedAt    sql.NullTime
		reason     string
		verdict    string
		transcript string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, interview_type, started_at, ended_at, duration_seconds, termination_reason, verdict, transcript
		 FROM interview_sessions WHERE id = ? AND user_id = ?`,
		sessionID, userID,
	).Scan(&se.ID, &se.UserID, &se.InterviewType, &se.StartedAt, &endedAt, &se.DurationSeconds, &reason, &verdict, &transcript)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get interview session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		se.EndedAt = &t
	}
	se.TerminationReason = models.TerminationReason(reason)
	se.Verdict = models.Verdict(verdict)
	if transcript != "" {
		if err := json.Unmarshal([]byte(transcript), &se.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	return &se, nil
}

// ListSessions returns session headers for a user, newest first.
func (s *Store) ListSessions(ctx context.Context, userID int64) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, interview_type, started_at, ended_at, duration_seconds, termination_reason, verdict
		 FROM interview_sessions WHERE user_id = ? ORDER BY started_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list interview sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			se      models.Session
			endedAt sql.NullTime
			reason  string
			verdict string
		)
		if err := rows.Scan(&se.ID, &se.UserID, &se.InterviewType, &se.StartedAt, &endedAt, &se.DurationSeconds, &reason, &verdict); err != nil {
			return nil, fmt.Errorf("scan interview session: %w", err)
		}
		if endedAt.Valid {
			t := endedAt.Time
			se.EndedAt = &t
		}
		se.TerminationReason = models.TerminationReason(reason)
		se.Verdict = models.Verdict(verdict)
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}
