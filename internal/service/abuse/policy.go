// Package abuse tracks repeated early exits per user and escalates
// Normal -> Warned -> Suspended.
package abuse

import "interviewprep/internal/models"

// Thresholds are the early-exit counts that trigger each escalation.
type Thresholds struct {
	Warn    int
	Suspend int
}

// DefaultThresholds mirror the shipped configuration.
var DefaultThresholds = Thresholds{Warn: 3, Suspend: 5}

func (t Thresholds) normalized() Thresholds {
	if t.Warn <= 0 {
		t.Warn = DefaultThresholds.Warn
	}
	if t.Suspend <= t.Warn {
		t.Suspend = t.Warn + (DefaultThresholds.Suspend - DefaultThresholds.Warn)
	}
	return t
}

// Next returns the level after an early exit brought the counter to count.
// It advances at most one step, so Suspended is only reachable from Warned.
func (t Thresholds) Next(level models.AbuseLevel, count int) models.AbuseLevel {
	t = t.normalized()
	switch level {
	case models.AbuseSuspended:
		return models.AbuseSuspended
	case models.AbuseWarned:
		if count >= t.Suspend {
			return models.AbuseSuspended
		}
		return models.AbuseWarned
	default:
		if count >= t.Warn {
			return models.AbuseWarned
		}
		return models.AbuseNormal
	}
}
