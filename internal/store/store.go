package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/model"
)

// Sentinel errors callers branch on with errors.Is.
var (
	// ErrDuplicateIdentity is returned by UpsertDiscovered when the caller
	// asserted a new opportunity but the fingerprint already exists.
	ErrDuplicateIdentity = eris.New("store: duplicate identity")

	// ErrStaleStage is returned by Transition when the opportunity is no
	// longer in the expected from-stage. Expected under concurrency; the
	// losing worker abandons silently.
	ErrStaleStage = eris.New("store: stale stage conflict")

	// ErrNotFound is returned when no opportunity has the given fingerprint.
	ErrNotFound = eris.New("store: not found")

	// ErrInvalidTransition is returned for edges outside the lifecycle graph.
	ErrInvalidTransition = eris.New("store: invalid stage transition")
)

// Transition describes one atomic stage advancement. The stage update, the
// history append, and any attached artifact or follow-up commit together or
// not at all.
type Transition struct {
	Fingerprint string
	From        model.Stage
	To          model.Stage
	Outcome     string

	// LastError is recorded on the opportunity for failure outcomes.
	LastError string

	// RetryAt defers the next pickup after a retry self-edge; ListByStage
	// skips rows whose retry time is still in the future.
	RetryAt *time.Time

	// Artifact, when set, is written append-only with the next version number
	// for its (fingerprint, stage).
	Artifact *model.ArtifactRef

	// FollowUp, when set, is scheduled in the same commit (used on entering
	// the submitted stage).
	FollowUp *model.FollowUp
}

// Store is the durable source of truth for opportunity lifecycle state.
// All writes are transactional; a crash never leaves a record between stages.
type Store interface {
	// Opportunities
	UpsertDiscovered(ctx context.Context, op model.Opportunity, assertNew bool) (merged bool, err error)
	GetOpportunity(ctx context.Context, fingerprint string) (*model.Opportunity, error)
	// ListByStage returns the stage's work queue, oldest first, skipping
	// rows whose retry time has not arrived.
	ListByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Opportunity, error)
	// ListAll returns every opportunity regardless of stage or retry
	// state, for reporting.
	ListAll(ctx context.Context, limit int) ([]model.Opportunity, error)
	Transition(ctx context.Context, t Transition) error
	History(ctx context.Context, fingerprint string) ([]model.HistoryEntry, error)

	// ArchiveRaw appends board payloads to the raw listing audit log,
	// keyed by (source, source_id). Re-scans refresh the stored row.
	ArchiveRaw(ctx context.Context, listings []model.RawListing) (int64, error)

	// Artifacts
	RecordArtifact(ctx context.Context, fingerprint string, stage model.Stage, ref string) (*model.ArtifactRef, error)
	LatestArtifact(ctx context.Context, fingerprint string, stage model.Stage) (*model.ArtifactRef, error)

	// Follow-ups
	ScheduleFollowUp(ctx context.Context, fu model.FollowUp) (*model.FollowUp, error)
	CancelFollowUps(ctx context.Context, fingerprint string) (int, error)
	PendingFollowUps(ctx context.Context, before time.Time, limit int) ([]model.FollowUp, error)
	// ClaimFollowUp moves a pending follow-up to fired, stamping the fire
	// token. Returns false if it was already fired or cancelled; this is
	// the exactly-once guard for the missed-wakeup scan.
	ClaimFollowUp(ctx context.Context, id, token string) (bool, error)

	// Statistics
	CountSubmittedSince(ctx context.Context, since time.Time) (int, error)
	CountByStage(ctx context.Context) (map[model.Stage]int, error)
	Stats(ctx context.Context, days int) ([]model.DailyStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// statColumns whitelists incrementable statistics fields.
var statColumns = map[string]bool{
	"discovered":       true,
	"submitted":        true,
	"follow_ups_fired": true,
}

func validStatColumn(field string) error {
	if !statColumns[field] {
		return eris.Errorf("store: unknown statistic %q", field)
	}
	return nil
}
