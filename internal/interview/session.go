package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/models"
)

// ErrSessionClosed is returned for appends or terminations after the
// session has already been terminated.
var ErrSessionClosed = errors.New("session already terminated")

// Session is the live runtime of one interview. It is closed exactly once.
type Session struct {
	meta       models.Session
	transcript *Transcript

	mu         sync.Mutex
	closed     atomic.Bool
	lastActive atomic.Int64
	final      *models.Session

	done    chan struct{}
	outcome *Outcome
}

func newSession(meta models.Session) *Session {
	s := &Session{
		meta:       meta,
		transcript: NewTranscript(meta.Transcript),
		done:       make(chan struct{}),
	}
	s.meta.Transcript = nil
	s.touch()
	return s
}

func (s *Session) ID() string            { return s.meta.ID }
func (s *Session) UserID() int64         { return s.meta.UserID }
func (s *Session) InterviewType() string { return s.meta.InterviewType }
func (s *Session) StartedAt() time.Time  { return s.meta.StartedAt }

// Active reports whether the session still accepts utterances.
func (s *Session) Active() bool {
	return !s.closed.Load()
}

// LastActivity is the time of the latest append (or start).
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Append records one utterance. Blank text is rejected.
func (s *Session) Append(speaker models.Speaker, text string) (models.Utterance, error) {
	if !speaker.Valid() {
		return models.Utterance{}, apperr.Invalid("speaker", "must be %q or %q", models.SpeakerAI, models.SpeakerUser)
	}
	if strings.TrimSpace(text) == "" {
		return models.Utterance{}, apperr.Invalid("text", "must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return models.Utterance{}, ErrSessionClosed
	}
	s.touch()
	return s.transcript.append(speaker, text, time.Now().UTC()), nil
}

// Snapshot returns the current session record including its transcript.
func (s *Session) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final != nil {
		out := *s.final
		out.Transcript = append([]models.Utterance(nil), s.final.Transcript...)
		return out
	}
	out := s.meta
	out.Transcript = s.transcript.Snapshot()
	return out
}

// terminate flips the session inactive and freezes its transcript. Only the
// first caller gets ok == true; every later call observes the frozen record.
func (s *Session) terminate(reason models.TerminationReason, durationSeconds int) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return *s.final, false
	}
	now := time.Now().UTC()
	if durationSeconds <= 0 {
		durationSeconds = int(now.Sub(s.meta.StartedAt).Seconds())
	}
	if reason == "" {
		reason = models.TerminationCompleted
	}
	final := s.meta
	final.EndedAt = &now
	final.DurationSeconds = durationSeconds
	final.TerminationReason = reason
	final.Transcript = s.transcript.Snapshot()
	s.final = &final
	return final, true
}

func (s *Session) setVerdict(v models.Verdict) {
	s.mu.Lock()
	if s.final != nil {
		s.final.Verdict = v
	}
	s.mu.Unlock()
}

// finish publishes the pipeline outcome to callers waiting on the session.
func (s *Session) finish(out *Outcome) {
	s.mu.Lock()
	s.outcome = out
	s.mu.Unlock()
	close(s.done)
}

// wait blocks until the first termination has produced its outcome.
func (s *Session) wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
