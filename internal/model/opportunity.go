package model

import (
	"time"
)

// Stage represents a position in an opportunity's lifecycle state machine.
type Stage string

const (
	StageDiscovered     Stage = "discovered"
	StageFiltered       Stage = "filtered"
	StageTailoring      Stage = "tailoring"
	StageLetterDrafting Stage = "letter_drafting"
	StageSubmitting     Stage = "submitting"
	StageSubmitted      Stage = "submitted"
	StageRejected       Stage = "rejected"
	StageFailed         Stage = "failed"
	StageWithdrawn      Stage = "withdrawn"
)

// Terminal reports whether the stage stops pipeline advancement.
func (s Stage) Terminal() bool {
	switch s {
	case StageSubmitted, StageRejected, StageFailed, StageWithdrawn:
		return true
	}
	return false
}

// transitions is the set of legal stage edges. The letter_drafting and
// submitting self-edges are the retry-within-stage loop; tailoring→filtered
// is the release edge taken when a generated resume fails review and the
// opportunity returns to the queue; every other edge advances the lifecycle.
var transitions = map[Stage][]Stage{
	StageDiscovered:     {StageFiltered, StageRejected, StageWithdrawn},
	StageFiltered:       {StageTailoring, StageFailed, StageWithdrawn},
	StageTailoring:      {StageLetterDrafting, StageFiltered, StageFailed, StageWithdrawn},
	StageLetterDrafting: {StageLetterDrafting, StageSubmitting, StageFailed, StageWithdrawn},
	StageSubmitting:     {StageSubmitting, StageSubmitted, StageFailed, StageWithdrawn},
	StageSubmitted:      {StageWithdrawn},
	// Manual re-queue paths; never taken automatically.
	StageFailed:   {StageDiscovered},
	StageRejected: {StageDiscovered},
}

// CanTransition reports whether from→to is a legal edge.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RawListing is a job posting as reported by a single board, before
// deduplication.
type RawListing struct {
	SourceID     string   `json:"source_id"`
	Source       string   `json:"source"`
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`
	PostedDate   time.Time `json:"posted_date"`
	Salary       string   `json:"salary,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	Benefits     []string `json:"benefits,omitempty"`
}

// Opportunity is one job listing under management. Content fields are
// immutable once recorded; Sources grows on re-discovery.
type Opportunity struct {
	Fingerprint  string   `json:"fingerprint"`
	SourceID     string   `json:"source_id"`
	Sources      []string `json:"sources"`
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`
	PostedDate   time.Time `json:"posted_date"`
	Salary       string   `json:"salary,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	Benefits     []string `json:"benefits,omitempty"`

	Stage         Stage          `json:"stage"`
	AttemptCounts map[Stage]int  `json:"attempt_counts,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	DiscoveredAt  time.Time      `json:"discovered_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasSource reports whether the given board already reported this opportunity.
func (o *Opportunity) HasSource(source string) bool {
	for _, s := range o.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Attempts returns the recorded attempt count for a stage.
func (o *Opportunity) Attempts(stage Stage) int {
	if o.AttemptCounts == nil {
		return 0
	}
	return o.AttemptCounts[stage]
}

// FromListing builds a new Opportunity in the Discovered stage.
func FromListing(fingerprint string, l RawListing, now time.Time) Opportunity {
	return Opportunity{
		Fingerprint:  fingerprint,
		SourceID:     l.SourceID,
		Sources:      []string{l.Source},
		Title:        l.Title,
		Company:      l.Company,
		Location:     l.Location,
		Description:  l.Description,
		URL:          l.URL,
		PostedDate:   l.PostedDate,
		Salary:       l.Salary,
		Requirements: l.Requirements,
		Benefits:     l.Benefits,
		Stage:        StageDiscovered,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}
}

// HistoryEntry is one append-only record of a stage transition.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	FromStage   Stage     `json:"from_stage"`
	ToStage     Stage     `json:"to_stage"`
	Outcome     string    `json:"outcome"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ArtifactRef points at a stage-produced document. Artifacts are immutable;
// a retried stage writes a new version, never overwrites.
type ArtifactRef struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Stage       Stage     `json:"stage"`
	Version     int       `json:"version"`
	Ref         string    `json:"ref"`
	CreatedAt   time.Time `json:"created_at"`
}
