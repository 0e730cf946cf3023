package model

import "time"

// FollowUpKind names the post-submission action a follow-up performs.
type FollowUpKind string

const (
	FollowUpStatusCheck   FollowUpKind = "status-check"
	FollowUpNudgeEmail    FollowUpKind = "nudge-email"
	FollowUpTrackerUpdate FollowUpKind = "tracker-update"
)

// FollowUpStatus is the lifecycle of a scheduled follow-up.
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpFired     FollowUpStatus = "fired"
	FollowUpCancelled FollowUpStatus = "cancelled"
)

// FollowUp is a scheduled action tied to a submitted opportunity. The fire
// token makes firing idempotent across restarts: a follow-up claimed with a
// token is never picked up again by the missed-wakeup scan.
type FollowUp struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	DueAt       time.Time      `json:"due_at"`
	Kind        FollowUpKind   `json:"kind"`
	Status      FollowUpStatus `json:"status"`
	FireToken   string         `json:"fire_token,omitempty"`
	FiredAt     *time.Time     `json:"fired_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DailyStats is one day of pipeline counters.
type DailyStats struct {
	Date           string `json:"date"`
	Discovered     int    `json:"discovered"`
	Submitted      int    `json:"submitted"`
	FollowUpsFired int    `json:"follow_ups_fired"`
}
