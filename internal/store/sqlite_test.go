package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apply-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testOpportunity(fp string) model.Opportunity {
	return model.FromListing(fp, model.RawListing{
		SourceID:   "ext-1",
		Source:     "linkedin",
		Title:      "Backend Engineer",
		Company:    "Acme",
		Location:   "Remote",
		URL:        "https://example.com/jobs/1",
		PostedDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}, time.Now().UTC())
}

// seedAtStage walks a fresh opportunity to the given stage through legal edges.
func seedAtStage(t *testing.T, st *SQLiteStore, fp string, target model.Stage) {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertDiscovered(ctx, testOpportunity(fp), true)
	require.NoError(t, err)

	path := []model.Stage{
		model.StageDiscovered, model.StageFiltered, model.StageTailoring,
		model.StageLetterDrafting, model.StageSubmitting, model.StageSubmitted,
	}
	for i := 0; i+1 < len(path); i++ {
		if path[i] == target {
			return
		}
		require.NoError(t, st.Transition(ctx, Transition{
			Fingerprint: fp,
			From:        path[i],
			To:          path[i+1],
			Outcome:     "advanced",
		}))
	}
}

// --- UpsertDiscovered ---

func TestSQLite_Upsert_NewOpportunity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	merged, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)
	assert.False(t, merged)

	got, err := st.GetOpportunity(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageDiscovered, got.Stage)
	assert.Equal(t, []string{"linkedin"}, got.Sources)
	assert.Equal(t, "Backend Engineer", got.Title)
}

func TestSQLite_Upsert_DuplicateAsserted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	_, err = st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestSQLite_Upsert_MergesSources(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	// Same job seen on a second board with an earlier posted date.
	second := testOpportunity("fp-1")
	second.Sources = []string{"indeed"}
	second.PostedDate = time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	merged, err := st.UpsertDiscovered(ctx, second, false)
	require.NoError(t, err)
	assert.True(t, merged)

	got, err := st.GetOpportunity(ctx, "fp-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"linkedin", "indeed"}, got.Sources)
	assert.Equal(t, second.PostedDate, got.PostedDate.UTC())
	// Stage untouched by re-discovery.
	assert.Equal(t, model.StageDiscovered, got.Stage)
}

func TestSQLite_Upsert_MergeDoesNotResetStage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageTailoring)

	second := testOpportunity("fp-1")
	second.Sources = []string{"indeed"}
	merged, err := st.UpsertDiscovered(ctx, second, false)
	require.NoError(t, err)
	assert.True(t, merged)

	got, err := st.GetOpportunity(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageTailoring, got.Stage)
}

func TestSQLite_Get_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetOpportunity(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Transition ---

func TestSQLite_Transition_Advances(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	err = st.Transition(ctx, Transition{
		Fingerprint: "fp-1",
		From:        model.StageDiscovered,
		To:          model.StageFiltered,
		Outcome:     "passed filter",
	})
	require.NoError(t, err)

	got, err := st.GetOpportunity(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageFiltered, got.Stage)
	assert.Equal(t, 1, got.Attempts(model.StageDiscovered))
}

func TestSQLite_Transition_StaleStage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	require.NoError(t, st.Transition(ctx, Transition{
		Fingerprint: "fp-1", From: model.StageDiscovered, To: model.StageFiltered,
	}))

	// A second worker still thinks the row is in discovered.
	err = st.Transition(ctx, Transition{
		Fingerprint: "fp-1", From: model.StageDiscovered, To: model.StageRejected,
	})
	assert.ErrorIs(t, err, ErrStaleStage)
}

func TestSQLite_Transition_IllegalEdge(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	err = st.Transition(ctx, Transition{
		Fingerprint: "fp-1", From: model.StageDiscovered, To: model.StageSubmitted,
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSQLite_Transition_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Transition(context.Background(), Transition{
		Fingerprint: "missing", From: model.StageDiscovered, To: model.StageFiltered,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Transition_SelfEdgeCountsAttempts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageLetterDrafting)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Transition(ctx, Transition{
			Fingerprint: "fp-1",
			From:        model.StageLetterDrafting,
			To:          model.StageLetterDrafting,
			Outcome:     "transient failure",
			LastError:   "upstream timeout",
		}))
	}

	got, err := st.GetOpportunity(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts(model.StageLetterDrafting))
	assert.Equal(t, "upstream timeout", got.LastError)
}

func TestSQLite_Transition_RetryAtDefersPickup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageLetterDrafting)

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, st.Transition(ctx, Transition{
		Fingerprint: "fp-1",
		From:        model.StageLetterDrafting,
		To:          model.StageLetterDrafting,
		RetryAt:     &future,
	}))

	ops, err := st.ListByStage(ctx, model.StageLetterDrafting, 10)
	require.NoError(t, err)
	assert.Empty(t, ops)

	// A cleared retry_at makes the row visible again.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.Transition(ctx, Transition{
		Fingerprint: "fp-1",
		From:        model.StageLetterDrafting,
		To:          model.StageLetterDrafting,
		RetryAt:     &past,
	}))

	ops, err = st.ListByStage(ctx, model.StageLetterDrafting, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "fp-1", ops[0].Fingerprint)
}

func TestSQLite_ListByStage_OldestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-a"), true)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = st.UpsertDiscovered(ctx, testOpportunity("fp-b"), true)
	require.NoError(t, err)

	ops, err := st.ListByStage(ctx, model.StageDiscovered, 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "fp-a", ops[0].Fingerprint)
	assert.Equal(t, "fp-b", ops[1].Fingerprint)
}

// --- History ---

func TestSQLite_History_AppendOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageTailoring)

	entries, err := st.History(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, entries, 3) // discovery + two advances

	assert.Equal(t, model.StageDiscovered, entries[0].ToStage)
	assert.Equal(t, model.StageFiltered, entries[1].ToStage)
	assert.Equal(t, model.StageTailoring, entries[2].ToStage)
	assert.Equal(t, model.StageDiscovered, entries[1].FromStage)
}

// --- Artifacts ---

func TestSQLite_Artifacts_VersionsIncrement(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	a1, err := st.RecordArtifact(ctx, "fp-1", model.StageTailoring, "resumes/fp-1-v1.md")
	require.NoError(t, err)
	assert.Equal(t, 1, a1.Version)

	a2, err := st.RecordArtifact(ctx, "fp-1", model.StageTailoring, "resumes/fp-1-v2.md")
	require.NoError(t, err)
	assert.Equal(t, 2, a2.Version)

	latest, err := st.LatestArtifact(ctx, "fp-1", model.StageTailoring)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "resumes/fp-1-v2.md", latest.Ref)
}

func TestSQLite_Artifacts_VersionsPerStage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	_, err = st.RecordArtifact(ctx, "fp-1", model.StageTailoring, "resume.md")
	require.NoError(t, err)

	letter, err := st.RecordArtifact(ctx, "fp-1", model.StageLetterDrafting, "letter.md")
	require.NoError(t, err)
	assert.Equal(t, 1, letter.Version)
}

func TestSQLite_Artifacts_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LatestArtifact(context.Background(), "fp-1", model.StageTailoring)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Follow-ups ---

func TestSQLite_FollowUp_ScheduleAndClaim(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageSubmitted)

	fu, err := st.ScheduleFollowUp(ctx, model.FollowUp{
		Fingerprint: "fp-1",
		Kind:        model.FollowUpStatusCheck,
		DueAt:       time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fu.ID)
	assert.Equal(t, model.FollowUpPending, fu.Status)

	pending, err := st.PendingFollowUps(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err := st.ClaimFollowUp(ctx, fu.ID, "token-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim is a no-op: already fired.
	claimed, err = st.ClaimFollowUp(ctx, fu.ID, "token-2")
	require.NoError(t, err)
	assert.False(t, claimed)

	pending, err = st.PendingFollowUps(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_FollowUp_RejectedForNonSubmitted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-1"), true)
	require.NoError(t, err)

	_, err = st.ScheduleFollowUp(ctx, model.FollowUp{
		Fingerprint: "fp-1",
		Kind:        model.FollowUpStatusCheck,
		DueAt:       time.Now().UTC(),
	})
	assert.Error(t, err)
}

func TestSQLite_FollowUp_CancelPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageSubmitted)

	for _, kind := range []model.FollowUpKind{model.FollowUpStatusCheck, model.FollowUpNudgeEmail} {
		_, err := st.ScheduleFollowUp(ctx, model.FollowUp{
			Fingerprint: "fp-1", Kind: kind, DueAt: time.Now().UTC().Add(-time.Minute),
		})
		require.NoError(t, err)
	}

	n, err := st.CancelFollowUps(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := st.PendingFollowUps(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_FollowUp_ScheduledWithSubmitTransition(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageSubmitting)

	due := time.Now().UTC().Add(-time.Second)
	require.NoError(t, st.Transition(ctx, Transition{
		Fingerprint: "fp-1",
		From:        model.StageSubmitting,
		To:          model.StageSubmitted,
		Outcome:     "submitted",
		FollowUp: &model.FollowUp{
			Kind:  model.FollowUpStatusCheck,
			DueAt: due,
		},
	}))

	pending, err := st.PendingFollowUps(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fp-1", pending[0].Fingerprint)
	assert.Equal(t, model.FollowUpStatusCheck, pending[0].Kind)
}

// --- Statistics ---

func TestSQLite_CountSubmittedSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageSubmitted)
	seedAtStage(t, st, "fp-2", model.StageSubmitted)
	seedAtStage(t, st, "fp-3", model.StageSubmitting)

	n, err := st.CountSubmittedSince(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.CountSubmittedSince(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_CountByStage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageFiltered)
	seedAtStage(t, st, "fp-2", model.StageFiltered)
	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-3"), true)
	require.NoError(t, err)

	counts, err := st.CountByStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.StageFiltered])
	assert.Equal(t, 1, counts[model.StageDiscovered])
}

func TestSQLite_Stats_DailyCounters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAtStage(t, st, "fp-1", model.StageSubmitted)
	_, err := st.UpsertDiscovered(ctx, testOpportunity("fp-2"), true)
	require.NoError(t, err)

	stats, err := st.Stats(ctx, 7)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Discovered)
	assert.Equal(t, 1, stats[0].Submitted)
}

// --- Raw archive ---

func TestSQLite_ArchiveRaw_DedupesOnRescan(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	listings := []model.RawListing{
		{Source: "linkedin", SourceID: "a", Title: "Engineer"},
		{Source: "linkedin", SourceID: "b", Title: "Designer"},
	}
	n, err := st.ArchiveRaw(ctx, listings)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-scan of the same board rows updates in place.
	listings[0].Title = "Senior Engineer"
	n, err = st.ArchiveRaw(ctx, listings)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
