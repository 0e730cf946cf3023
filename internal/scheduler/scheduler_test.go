package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apply-cli/internal/followup"
	"github.com/sells-group/apply-cli/internal/gateway"
	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/resilience"
	"github.com/sells-group/apply-cli/internal/store"
)

// recordAction counts executions and optionally chains a successor.
type recordAction struct {
	kind model.FollowUpKind
	next *model.FollowUp

	mu    sync.Mutex
	fired []string
}

func (a *recordAction) Kind() model.FollowUpKind { return a.kind }

func (a *recordAction) Execute(_ context.Context, op *model.Opportunity, fu *model.FollowUp) (*model.FollowUp, error) {
	a.mu.Lock()
	a.fired = append(a.fired, fu.ID)
	a.mu.Unlock()
	return a.next, nil
}

func (a *recordAction) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fired)
}

// testGateway admits everything without in-call retries so each Tick
// drives exactly one action execution.
func testGateway() *gateway.Gateway {
	return gateway.New(gateway.Config{
		WaitBudget:   time.Second,
		CallTimeout:  time.Minute,
		DefaultLimit: gateway.SourceLimit{Rate: 1000, Burst: 100},
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
	}, nil)
}

func newSchedulerStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedSubmitted walks a fresh opportunity to the submitted stage.
func seedSubmitted(t *testing.T, st store.Store, fp string) {
	t.Helper()
	op := model.FromListing(fp, model.RawListing{
		SourceID: "src-" + fp,
		Source:   "board",
		Title:    "Backend Engineer",
		Company:  "Acme",
	}, time.Now().UTC())
	_, err := st.UpsertDiscovered(t.Context(), op, true)
	require.NoError(t, err)

	path := []model.Stage{
		model.StageFiltered,
		model.StageTailoring,
		model.StageLetterDrafting,
		model.StageSubmitting,
		model.StageSubmitted,
	}
	from := model.StageDiscovered
	for _, to := range path {
		require.NoError(t, st.Transition(t.Context(), store.Transition{
			Fingerprint: fp,
			From:        from,
			To:          to,
			Outcome:     "advance",
		}))
		from = to
	}
}

func scheduleDue(t *testing.T, st store.Store, fp string, kind model.FollowUpKind, due time.Time) *model.FollowUp {
	t.Helper()
	fu, err := st.ScheduleFollowUp(t.Context(), model.FollowUp{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		DueAt:       due,
		Kind:        kind,
		Status:      model.FollowUpPending,
	})
	require.NoError(t, err)
	return fu
}

func TestTickFiresDueFollowUp(t *testing.T) {
	st := newSchedulerStore(t)
	seedSubmitted(t, st, "fp-1")
	scheduleDue(t, st, "fp-1", model.FollowUpStatusCheck, time.Now().UTC().Add(-time.Hour))

	action := &recordAction{kind: model.FollowUpStatusCheck}
	sched := New(st, followup.NewRegistry(action), testGateway(), Options{})

	res, err := sched.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fired)
	assert.Equal(t, 1, action.count())
}

func TestTickLeavesFutureFollowUps(t *testing.T) {
	st := newSchedulerStore(t)
	seedSubmitted(t, st, "fp-1")
	scheduleDue(t, st, "fp-1", model.FollowUpStatusCheck, time.Now().UTC().Add(time.Hour))

	action := &recordAction{kind: model.FollowUpStatusCheck}
	sched := New(st, followup.NewRegistry(action), testGateway(), Options{Lookahead: 2 * time.Hour})

	res, err := sched.Tick(t.Context())
	require.NoError(t, err)
	assert.Zero(t, res.Fired)
	assert.Zero(t, action.count())

	// It is loaded in the heap though, waiting on the timer.
	next, ok := sched.due.NextDue()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), next, time.Minute)
}

func TestFiringIsExactlyOnceAcrossRestarts(t *testing.T) {
	st := newSchedulerStore(t)
	seedSubmitted(t, st, "fp-1")
	scheduleDue(t, st, "fp-1", model.FollowUpStatusCheck, time.Now().UTC().Add(-time.Hour))

	action := &recordAction{kind: model.FollowUpStatusCheck}
	reg := followup.NewRegistry(action)

	// Two scheduler instances over the same store, as after a restart
	// or with a second process racing the first.
	first := New(st, reg, testGateway(), Options{})
	second := New(st, reg, testGateway(), Options{})

	_, err := first.Tick(t.Context())
	require.NoError(t, err)
	res, err := second.Tick(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, action.count())
	assert.Zero(t, res.Fired)
	assert.Equal(t, 1, res.Lost)
}

func TestOrphanedFollowUpSkipsAction(t *testing.T) {
	st := newSchedulerStore(t)
	seedSubmitted(t, st, "fp-1")
	fu := scheduleDue(t, st, "fp-1", model.FollowUpStatusCheck, time.Now().UTC().Add(-time.Hour))

	// Withdrawn after scheduling. CancelFollowUps is what the withdraw
	// operation normally does; simulate the race where the scan read the
	// row first by withdrawing without cancelling.
	require.NoError(t, st.Transition(t.Context(), store.Transition{
		Fingerprint: "fp-1",
		From:        model.StageSubmitted,
		To:          model.StageWithdrawn,
		Outcome:     "manual withdrawal",
	}))

	action := &recordAction{kind: model.FollowUpStatusCheck}
	sched := New(st, followup.NewRegistry(action), testGateway(), Options{})

	res, err := sched.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Orphaned)
	assert.Zero(t, action.count())

	// The claim consumed it; nothing left pending.
	pending, err := st.PendingFollowUps(t.Context(), time.Now().UTC().Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_ = fu
}

func TestChainedFollowUpIsScheduled(t *testing.T) {
	st := newSchedulerStore(t)
	seedSubmitted(t, st, "fp-1")
	scheduleDue(t, st, "fp-1", model.FollowUpStatusCheck, time.Now().UTC().Add(-time.Hour))

	nudgeDue := time.Now().UTC().Add(3 * 24 * time.Hour)
	action := &recordAction{
		kind: model.FollowUpStatusCheck,
		next: &model.FollowUp{
			ID:          uuid.NewString(),
			Fingerprint: "fp-1",
			DueAt:       nudgeDue,
			Kind:        model.FollowUpNudgeEmail,
			Status:      model.FollowUpPending,
		},
	}
	sched := New(st, followup.NewRegistry(action), testGateway(), Options{})

	res, err := sched.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fired)
	assert.Equal(t, 1, res.Chained)

	pending, err := st.PendingFollowUps(t.Context(), nudgeDue.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.FollowUpNudgeEmail, pending[0].Kind)
}

func TestDueHeapOrdersAndDeduplicates(t *testing.T) {
	h := newDueHeap()
	now := time.Now().UTC()

	later := model.FollowUp{ID: "b", DueAt: now.Add(time.Minute)}
	sooner := model.FollowUp{ID: "a", DueAt: now.Add(-time.Minute)}
	h.Offer(later)
	h.Offer(sooner)
	h.Offer(sooner) // dup, ignored

	got, ok := h.PopDue(now)
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = h.PopDue(now)
	assert.False(t, ok)

	// Re-offer after pop works, the ID was released.
	h.Offer(sooner)
	assert.Equal(t, 2, h.Len())
}

func TestFireRespectsGatewayAdmission(t *testing.T) {
	st := newSchedulerStore(t)
	seedSubmitted(t, st, "fp-1")
	scheduleDue(t, st, "fp-1", model.FollowUpStatusCheck, time.Now().UTC().Add(-time.Hour))

	// A drained bucket with a tiny wait budget refuses admission, so
	// the action never runs even though the follow-up is due.
	choked := gateway.New(gateway.Config{
		WaitBudget:   5 * time.Millisecond,
		CallTimeout:  time.Second,
		DefaultLimit: gateway.SourceLimit{Rate: 0.001, Burst: 1},
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
	}, nil)
	require.NoError(t, choked.Call(t.Context(), string(model.FollowUpStatusCheck), "fire",
		func(ctx context.Context) error { return nil }))

	action := &recordAction{kind: model.FollowUpStatusCheck}
	sched := New(st, followup.NewRegistry(action), choked, Options{})

	res, err := sched.Tick(t.Context())
	require.NoError(t, err)
	assert.Zero(t, res.Fired)
	assert.Zero(t, action.count())
}
