package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/auth"
	"interviewprep/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("interview session not found")

const (
	DefaultIdleTimeout = 30 * time.Minute
	// finished sessions stay addressable so late duplicate ends resolve to
	// the original outcome
	defaultRetention = 10 * time.Minute
)

// Gate refuses new sessions for suspended accounts.
type Gate interface {
	Check(ctx context.Context, userID int64) error
}

// EndRequest carries what the client knows at termination time.
type EndRequest struct {
	Reason          models.TerminationReason
	DurationSeconds int
	Recording       *models.RecordingBlob
}

// Manager owns the live sessions of every user.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	gate     Gate
	store    *Store
	pipeline *Pipeline
	log      *zap.SugaredLogger

	idleTimeout time.Duration
	retention   time.Duration
	now         func() time.Time
}

func NewManager(store *Store, gate Gate, pipeline *Pipeline, idleTimeout time.Duration, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		gate:        gate,
		store:       store,
		pipeline:    pipeline,
		log:         log,
		idleTimeout: idleTimeout,
		retention:   defaultRetention,
		now:         time.Now,
	}
}

// Start opens a new session. Suspended accounts are refused before anything
// is created.
func (m *Manager) Start(ctx context.Context, userID int64, interviewType string) (*Session, error) {
	if userID <= 0 {
		return nil, apperr.ErrAuthRequired
	}
	if m.gate != nil {
		if err := m.gate.Check(ctx, userID); err != nil {
			return nil, err
		}
	}
	interviewType = strings.TrimSpace(interviewType)
	if interviewType == "" {
		return nil, apperr.Invalid("interview_type", "is required")
	}

	meta := models.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		InterviewType: interviewType,
		StartedAt:     m.now().UTC(),
	}
	if m.store != nil {
		if err := m.store.CreateSession(ctx, &meta); err != nil {
			return nil, err
		}
	}
	se := newSession(meta)

	m.mu.Lock()
	m.sessions[se.ID()] = se
	m.mu.Unlock()
	m.log.Infof("interview session %s started for user %d (%s)", se.ID(), userID, interviewType)
	return se, nil
}

// Get returns a live or recently finished session owned by the user.
func (m *Manager) Get(userID int64, sessionID string) (*Session, error) {
	m.mu.Lock()
	se, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok || se.UserID() != userID {
		return nil, ErrSessionNotFound
	}
	return se, nil
}

// Snapshot returns the session record, falling back to the archive once the
// live session has been evicted.
func (m *Manager) Snapshot(ctx context.Context, userID int64, sessionID string) (models.Session, error) {
	if se, err := m.Get(userID, sessionID); err == nil {
		return se.Snapshot(), nil
	}
	if m.store == nil {
		return models.Session{}, ErrSessionNotFound
	}
	stored, err := m.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return models.Session{}, ErrSessionNotFound
	}
	return *stored, nil
}

// Append records an utterance on a live session.
func (m *Manager) Append(userID int64, sessionID string, speaker models.Speaker, text string) (models.Utterance, error) {
	se, err := m.Get(userID, sessionID)
	if err != nil {
		return models.Utterance{}, err
	}
	return se.Append(speaker, text)
}

// End terminates a session and runs the pipeline. Concurrent or repeated
// calls for the same session share the first call's outcome and never
// re-run classification.
func (m *Manager) End(ctx context.Context, userID int64, sessionID string, req EndRequest) (*Outcome, error) {
	se, err := m.Get(userID, sessionID)
	if err != nil {
		return nil, err
	}
	final, first := se.terminate(req.Reason, req.DurationSeconds)
	if !first {
		out, err := se.wait(ctx)
		if err != nil {
			return nil, err
		}
		dup := *out
		dup.Duplicate = true
		return &dup, nil
	}

	out := m.pipeline.Run(ctx, final, req.Recording)
	se.setVerdict(out.Session.Verdict)
	se.finish(out)
	m.log.Infof("interview session %s ended: reason=%s verdict=%s chars=%d",
		final.ID, final.TerminationReason, out.Session.Verdict, out.Classification.Chars)
	return out, nil
}

// StartReaper ends sessions idle past the timeout and evicts finished ones.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reap(ctx)
			}
		}
	}()
}

func (m *Manager) reap(ctx context.Context) {
	now := m.now()
	var idle []*Session

	m.mu.Lock()
	for id, se := range m.sessions {
		age := now.Sub(se.LastActivity())
		switch {
		case !se.Active() && age >= m.retention:
			select {
			case <-se.done:
				delete(m.sessions, id)
			default:
			}
		case se.Active() && age >= m.idleTimeout:
			idle = append(idle, se)
		}
	}
	m.mu.Unlock()

	for _, se := range idle {
		// abandoned sessions end on behalf of their owner
		ownerCtx := auth.WithUser(ctx, se.UserID())
		if _, err := m.End(ownerCtx, se.UserID(), se.ID(), EndRequest{Reason: models.TerminationEarlyExit}); err != nil {
			m.log.Warnf("reap session %s failed: %v", se.ID(), err)
		}
	}
}

// ActiveCount reports the number of sessions still accepting utterances.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, se := range m.sessions {
		if se.Active() {
			n++
		}
	}
	return n
}
