package models

import "time"

// Speaker tags an utterance in a transcript.
type Speaker string

const (
	SpeakerAI   Speaker = "ai"
	SpeakerUser Speaker = "user"
)

// Valid reports whether s is a known speaker.
func (s Speaker) Valid() bool {
	return s == SpeakerAI || s == SpeakerUser
}

// TerminationReason records how a session ended.
type TerminationReason string

const (
	TerminationCompleted TerminationReason = "completed"
	TerminationEarlyExit TerminationReason = "early-exit"
	TerminationError     TerminationReason = "error"
)

// Verdict is the classification outcome of a terminated session.
type Verdict string

const (
	VerdictNone     Verdict = ""
	VerdictTooShort Verdict = "too-short"
	VerdictEligible Verdict = "eligible"
)

// Utterance is one speaker-tagged line of a transcript.
type Utterance struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session groups the utterances of one interview interaction.
type Session struct {
	ID                string            `json:"id"`
	UserID            int64             `json:"user_id"`
	InterviewType     string            `json:"interview_type"`
	StartedAt         time.Time         `json:"started_at"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	DurationSeconds   int               `json:"duration_seconds"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	Verdict           Verdict           `json:"verdict,omitempty"`
	Transcript        []Utterance       `json:"transcript"`
}
