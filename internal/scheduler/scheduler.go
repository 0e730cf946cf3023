// Package scheduler fires follow-ups when they come due. Firing is
// exactly-once: a follow-up must be claimed with a fresh token before
// its action runs, and a claim can only succeed once.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/followup"
	"github.com/sells-group/apply-cli/internal/gateway"
	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/store"
)

// Options tunes the scheduler loop.
type Options struct {
	// ScanInterval is how often the store is rescanned. The scan is
	// what recovers follow-ups that came due while the process was
	// down.
	ScanInterval time.Duration
	// Lookahead pre-loads follow-ups due within this window into the
	// in-memory heap so the timer can fire them on time.
	Lookahead time.Duration
	// BatchSize caps follow-ups loaded per scan.
	BatchSize int
}

// DefaultOptions returns the loop timings for a long-running process.
func DefaultOptions() Options {
	return Options{
		ScanInterval: time.Minute,
		Lookahead:    5 * time.Minute,
		BatchSize:    100,
	}
}

// Scheduler drives follow-up execution against the store. Actions run
// through the gateway under the source name of their kind, so a probe
// target or tracker outage trips its own breaker without starving the
// rest.
type Scheduler struct {
	store store.Store
	reg   *followup.Registry
	gw    *gateway.Gateway
	opts  Options
	due   *dueHeap
}

// New creates a scheduler.
func New(st store.Store, reg *followup.Registry, gw *gateway.Gateway, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = def.ScanInterval
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = def.Lookahead
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if gw == nil {
		gw = gateway.New(gateway.DefaultConfig(), nil)
	}
	return &Scheduler{
		store: st,
		reg:   reg,
		gw:    gw,
		opts:  opts,
		due:   newDueHeap(),
	}
}

// TickResult counts one pass over the due follow-ups.
type TickResult struct {
	Fired    int
	Lost     int
	Orphaned int
	Chained  int
}

// Tick scans for due work and fires everything whose time has come.
// Safe to call from multiple processes; the claim token arbitrates.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	pending, err := s.store.PendingFollowUps(ctx, time.Now().UTC().Add(s.opts.Lookahead), s.opts.BatchSize)
	if err != nil {
		return result, eris.Wrap(err, "scan pending follow-ups")
	}
	for _, fu := range pending {
		s.due.Offer(fu)
	}

	now := time.Now().UTC()
	for {
		fu, ok := s.due.PopDue(now)
		if !ok {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.fire(ctx, fu, &result)
	}
}

func (s *Scheduler) fire(ctx context.Context, fu model.FollowUp, result *TickResult) {
	token := uuid.NewString()
	claimed, err := s.store.ClaimFollowUp(ctx, fu.ID, token)
	if err != nil {
		zap.L().Error("follow-up claim failed",
			zap.String("follow_up", fu.ID),
			zap.Error(err),
		)
		return
	}
	if !claimed {
		// Fired elsewhere, or cancelled since the scan.
		result.Lost++
		return
	}
	fu.Status = model.FollowUpFired
	fu.FireToken = token

	op, err := s.store.GetOpportunity(ctx, fu.Fingerprint)
	if err != nil {
		zap.L().Error("follow-up opportunity lookup failed",
			zap.String("follow_up", fu.ID),
			zap.String("fingerprint", fu.Fingerprint),
			zap.Error(err),
		)
		return
	}
	if op.Stage != model.StageSubmitted {
		// Withdrawn or requeued since scheduling. The claim already
		// consumed the follow-up, so the chain just ends here.
		zap.L().Info("follow-up orphaned, opportunity left submitted stage",
			zap.String("follow_up", fu.ID),
			zap.String("fingerprint", fu.Fingerprint),
			zap.String("stage", string(op.Stage)),
		)
		result.Orphaned++
		return
	}

	next, err := gateway.CallVal(ctx, s.gw, string(fu.Kind), "fire", func(ctx context.Context) (*model.FollowUp, error) {
		return s.reg.Execute(ctx, op, &fu)
	})
	if err != nil {
		zap.L().Error("follow-up action failed",
			zap.String("follow_up", fu.ID),
			zap.String("kind", string(fu.Kind)),
			zap.Error(err),
		)
		return
	}
	result.Fired++
	zap.L().Info("follow-up fired",
		zap.String("follow_up", fu.ID),
		zap.String("kind", string(fu.Kind)),
		zap.String("fingerprint", fu.Fingerprint),
	)

	if next != nil {
		if _, err := s.store.ScheduleFollowUp(ctx, *next); err != nil {
			zap.L().Error("chained follow-up scheduling failed",
				zap.String("fingerprint", next.Fingerprint),
				zap.String("kind", string(next.Kind)),
				zap.Error(err),
			)
			return
		}
		result.Chained++
	}
}

// Run ticks until the context ends. The timer tracks the earliest
// in-heap due time so imminent follow-ups fire close to schedule, while
// the scan interval bounds how stale the heap can get.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		res, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if res.Fired > 0 || res.Orphaned > 0 {
			zap.L().Info("scheduler tick",
				zap.Int("fired", res.Fired),
				zap.Int("lost", res.Lost),
				zap.Int("orphaned", res.Orphaned),
				zap.Int("chained", res.Chained),
			)
		}

		wait := s.opts.ScanInterval
		if next, ok := s.due.NextDue(); ok {
			if until := time.Until(next); until < wait {
				wait = until
			}
			if wait < 0 {
				wait = 0
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
