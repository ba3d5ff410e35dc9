package models

import "time"

// AbuseLevel is the per-user early-exit escalation state.
type AbuseLevel string

const (
	AbuseNormal    AbuseLevel = "normal"
	AbuseWarned    AbuseLevel = "warned"
	AbuseSuspended AbuseLevel = "suspended"
)

// Rank orders levels so transitions can be checked for monotonicity.
func (l AbuseLevel) Rank() int {
	switch l {
	case AbuseWarned:
		return 1
	case AbuseSuspended:
		return 2
	default:
		return 0
	}
}

// AbuseState tracks repeated early terminations for one user.
type AbuseState struct {
	UserID         int64      `json:"user_id"`
	EarlyExitCount int        `json:"early_exit_count"`
	Level          AbuseLevel `json:"level"`
	WarnedAt       *time.Time `json:"warned_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	SuspendedAt    *time.Time `json:"suspended_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Suspended reports whether new sessions must be refused.
func (s AbuseState) Suspended() bool {
	return s.Level == AbuseSuspended
}
