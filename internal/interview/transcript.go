package interview

import (
	"strings"
	"sync"
	"time"

	"interviewprep/internal/models"
)

// Transcript accumulates speaker-tagged utterances in arrival order.
// It never reorders or deduplicates.
type Transcript struct {
	mu    sync.Mutex
	items []models.Utterance
}

// NewTranscript seeds a transcript with prior utterances.
func NewTranscript(seed []models.Utterance) *Transcript {
	t := &Transcript{}
	if len(seed) > 0 {
		t.items = append(make([]models.Utterance, 0, len(seed)), seed...)
	}
	return t
}

func (t *Transcript) append(speaker models.Speaker, text string, at time.Time) models.Utterance {
	u := models.Utterance{Speaker: speaker, Text: text, Timestamp: at}
	t.mu.Lock()
	t.items = append(t.items, u)
	t.mu.Unlock()
	return u
}

// Snapshot returns a copy of the utterances appended so far.
func (t *Transcript) Snapshot() []models.Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Utterance, len(t.items))
	copy(out, t.items)
	return out
}

// Len reports the number of utterances.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// JoinText concatenates the utterance texts, one per line, without speaker labels.
func JoinText(items []models.Utterance) string {
	var b strings.Builder
	for i, u := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(u.Text)
	}
	return b.String()
}
