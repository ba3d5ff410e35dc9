package abuse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/models"
	"interviewprep/internal/storage"

	"go.uber.org/zap"
)

// Notifier is told when a user becomes suspended so a human can review.
type Notifier interface {
	NotifySuspended(ctx context.Context, state models.AbuseState) error
}

// Service is the single writer of abuse_states. Counter increments are done
// in SQL so concurrent terminations for one user cannot lose updates.
type Service struct {
	db         *sql.DB
	dialect    string
	thresholds Thresholds
	notifier   Notifier
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewService(db *sql.DB, driver string, thresholds Thresholds, notifier Notifier, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		db:         db,
		dialect:    storage.Dialect(driver),
		thresholds: thresholds.normalized(),
		notifier:   notifier,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Thresholds reports the effective escalation thresholds.
func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

// Get returns the user's state; users without a row are Normal.
func (s *Service) Get(ctx context.Context, userID int64) (models.AbuseState, error) {
	if userID <= 0 {
		return models.AbuseState{}, apperr.ErrAuthRequired
	}
	st, err := scanState(s.db.QueryRowContext(ctx, selectState, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.AbuseState{UserID: userID, Level: models.AbuseNormal}, nil
	}
	if err != nil {
		return models.AbuseState{}, fmt.Errorf("load abuse state: %w", err)
	}
	return st, nil
}

// Check fails with ErrAccountSuspended when the user may not start sessions.
func (s *Service) Check(ctx context.Context, userID int64) error {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if st.Suspended() {
		return apperr.ErrAccountSuspended
	}
	return nil
}

// RecordEarlyExit increments the counter and applies at most one escalation.
func (s *Service) RecordEarlyExit(ctx context.Context, userID int64) (models.AbuseState, error) {
	if userID <= 0 {
		return models.AbuseState{}, apperr.ErrAuthRequired
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.AbuseState{}, fmt.Errorf("begin abuse tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureRow(ctx, tx, userID, now); err != nil {
		return models.AbuseState{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE abuse_states SET early_exit_count = early_exit_count + 1, updated_at = ? WHERE user_id = ?`,
		now, userID,
	); err != nil {
		return models.AbuseState{}, fmt.Errorf("increment early exits: %w", err)
	}
	st, err := scanState(tx.QueryRowContext(ctx, selectState, userID))
	if err != nil {
		return models.AbuseState{}, fmt.Errorf("load abuse state: %w", err)
	}

	prev := st.Level
	next := s.thresholds.Next(prev, st.EarlyExitCount)
	if next != prev {
		var q string
		switch next {
		case models.AbuseWarned:
			q = `UPDATE abuse_states SET level = ?, warned_at = ?, updated_at = ? WHERE user_id = ? AND level = ?`
		case models.AbuseSuspended:
			q = `UPDATE abuse_states SET level = ?, suspended_at = ?, updated_at = ? WHERE user_id = ? AND level = ?`
		}
		res, err := tx.ExecContext(ctx, q, string(next), now, now, userID, string(prev))
		if err != nil {
			return models.AbuseState{}, fmt.Errorf("escalate abuse level: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			st.Level = next
			t := now
			if next == models.AbuseWarned {
				st.WarnedAt = &t
			} else {
				st.SuspendedAt = &t
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return models.AbuseState{}, fmt.Errorf("commit abuse tx: %w", err)
	}

	if st.Level != prev {
		s.log.Warnf("user %d abuse level %s -> %s after %d early exits", userID, prev, st.Level, st.EarlyExitCount)
	}
	if st.Level == models.AbuseSuspended && prev != models.AbuseSuspended && s.notifier != nil {
		if err := s.notifier.NotifySuspended(ctx, st); err != nil {
			s.log.Errorf("notify suspension for user %d failed: %v", userID, err)
		}
	}
	return st, nil
}

// Acknowledge records that the warning was read. The counter is unchanged.
func (s *Service) Acknowledge(ctx context.Context, userID int64) (models.AbuseState, error) {
	if userID <= 0 {
		return models.AbuseState{}, apperr.ErrAuthRequired
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE abuse_states SET acknowledged_at = ?, updated_at = ? WHERE user_id = ? AND level <> ?`,
		now, now, userID, string(models.AbuseNormal),
	); err != nil {
		return models.AbuseState{}, fmt.Errorf("acknowledge warning: %w", err)
	}
	return s.Get(ctx, userID)
}

// Reset is the out-of-band administrative override back to Normal.
func (s *Service) Reset(ctx context.Context, userID int64) (models.AbuseState, error) {
	if userID <= 0 {
		return models.AbuseState{}, apperr.Invalid("user_id", "must be positive")
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE abuse_states
		 SET early_exit_count = 0, level = ?, warned_at = NULL, acknowledged_at = NULL, suspended_at = NULL, updated_at = ?
		 WHERE user_id = ?`,
		string(models.AbuseNormal), now, userID,
	); err != nil {
		return models.AbuseState{}, fmt.Errorf("reset abuse state: %w", err)
	}
	s.log.Infof("abuse state reset for user %d", userID)
	return s.Get(ctx, userID)
}

func (s *Service) ensureRow(ctx context.Context, tx *sql.Tx, userID int64, now time.Time) error {
	var q string
	switch s.dialect {
	case "mysql":
		q = `INSERT IGNORE INTO abuse_states (user_id, early_exit_count, level, updated_at) VALUES (?, 0, ?, ?)`
	default:
		q = `INSERT OR IGNORE INTO abuse_states (user_id, early_exit_count, level, updated_at) VALUES (?, 0, ?, ?)`
	}
	if _, err := tx.ExecContext(ctx, q, userID, string(models.AbuseNormal), now); err != nil {
		return fmt.Errorf("ensure abuse state: %w", err)
	}
	return nil
}

const selectState = `SELECT user_id, early_exit_count, level, warned_at, acknowledged_at, suspended_at, updated_at
	FROM abuse_states WHERE user_id = ?`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (models.AbuseState, error) {
	var st models.AbuseState
	var level string
	var warnedAt, ackedAt, suspendedAt sql.NullTime
	if err := row.Scan(&st.UserID, &st.EarlyExitCount, &level, &warnedAt, &ackedAt, &suspendedAt, &st.UpdatedAt); err != nil {
		return models.AbuseState{}, err
	}
	st.Level = models.AbuseLevel(level)
	st.WarnedAt = timePtr(warnedAt)
	st.AcknowledgedAt = timePtr(ackedAt)
	st.SuspendedAt = timePtr(suspendedAt)
	return st, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
