// Package engine advances opportunities through the application lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/apply-cli/internal/filter"
	"github.com/sells-group/apply-cli/internal/gateway"
	"github.com/sells-group/apply-cli/internal/materials"
	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/resilience"
	"github.com/sells-group/apply-cli/internal/store"
	"github.com/sells-group/apply-cli/internal/submit"
)

// Options tunes one engine instance.
type Options struct {
	// Workers caps concurrent opportunity handlers per stage.
	Workers int
	// BatchSize caps how many rows one cycle pulls per stage.
	BatchSize int
	// RetryBudget is the attempt count after which a stage gives up
	// and the opportunity fails.
	RetryBudget int
	// DailyLimit caps submissions per UTC day. Zero means unlimited.
	DailyLimit int
	// FollowUpAfter schedules the post-submission status check.
	FollowUpAfter time.Duration
	// Retry shapes the backoff written into retry_at on transient failures.
	Retry resilience.RetryConfig
}

// DefaultOptions mirrors the limits a single-seat deployment wants.
func DefaultOptions() Options {
	return Options{
		Workers:       4,
		BatchSize:     50,
		RetryBudget:   3,
		DailyLimit:    10,
		FollowUpAfter: 7 * 24 * time.Hour,
		Retry: resilience.RetryConfig{
			InitialBackoff: 30 * time.Second,
			MaxBackoff:     15 * time.Minute,
		},
	}
}

// Engine wires the store, the filter, document generation, and the
// submission channel into one stage-driven pipeline. Every outbound
// call (text generation, delivery) goes through the gateway.
type Engine struct {
	store   store.Store
	gw      *gateway.Gateway
	filter  *filter.Filter
	tailor  *materials.ResumeTailor
	letters *materials.LetterWriter
	ws      *materials.Workspace
	profile *materials.Profile
	channel submit.Channel
	opts    Options
}

// New creates an engine. Options are normalized against DefaultOptions.
func New(st store.Store, gw *gateway.Gateway, f *filter.Filter, tailor *materials.ResumeTailor, letters *materials.LetterWriter, ws *materials.Workspace, profile *materials.Profile, channel submit.Channel, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = def.RetryBudget
	}
	if opts.FollowUpAfter <= 0 {
		opts.FollowUpAfter = def.FollowUpAfter
	}
	if gw == nil {
		gw = gateway.New(gateway.DefaultConfig(), nil)
	}
	return &Engine{
		store:   st,
		gw:      gw,
		filter:  f,
		tailor:  tailor,
		letters: letters,
		ws:      ws,
		profile: profile,
		channel: channel,
		opts:    opts,
	}
}

// activeStages is the processing order for one cycle. Earlier stages
// feed later ones, so a listing can move several steps per cycle.
var activeStages = []model.Stage{
	model.StageDiscovered,
	model.StageFiltered,
	model.StageTailoring,
	model.StageLetterDrafting,
	model.StageSubmitting,
}

// CycleResult counts what one RunOnce pass did.
type CycleResult struct {
	Processed int
	Advanced  int
	Failed    int
}

// RunOnce drains each stage queue once. Workers race via the store's
// stage guard, so a row claimed elsewhere is skipped, not an error.
func (e *Engine) RunOnce(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	for _, stage := range activeStages {
		ops, err := e.store.ListByStage(ctx, stage, e.opts.BatchSize)
		if err != nil {
			return result, eris.Wrapf(err, "list %s queue", stage)
		}
		if len(ops) == 0 {
			continue
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Workers)
		results := make([]stageOutcome, len(ops))
		for i, op := range ops {
			g.Go(func() error {
				results[i] = e.handle(gCtx, stage, op)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
		for _, r := range results {
			result.Processed++
			switch r {
			case outcomeAdvanced:
				result.Advanced++
			case outcomeFailed:
				result.Failed++
			}
		}
	}
	return result, nil
}

// Run repeats cycles until the context ends.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := e.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if res.Processed > 0 {
			zap.L().Info("engine cycle complete",
				zap.Int("processed", res.Processed),
				zap.Int("advanced", res.Advanced),
				zap.Int("failed", res.Failed),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type stageOutcome int

const (
	outcomeSkipped stageOutcome = iota
	outcomeAdvanced
	outcomeFailed
)

func (e *Engine) handle(ctx context.Context, stage model.Stage, op model.Opportunity) stageOutcome {
	var err error
	var out stageOutcome
	switch stage {
	case model.StageDiscovered:
		out, err = e.handleDiscovered(ctx, op)
	case model.StageFiltered:
		out, err = e.handleFiltered(ctx, op)
	case model.StageTailoring:
		out, err = e.handleTailoring(ctx, op)
	case model.StageLetterDrafting:
		out, err = e.handleLetterDrafting(ctx, op)
	case model.StageSubmitting:
		out, err = e.handleSubmitting(ctx, op)
	default:
		return outcomeSkipped
	}
	if err != nil {
		if errors.Is(err, store.ErrStaleStage) {
			// Another worker won the row. Nothing to do.
			zap.L().Debug("lost stage race",
				zap.String("fingerprint", op.Fingerprint),
				zap.String("stage", string(stage)),
			)
			return outcomeSkipped
		}
		zap.L().Error("stage handler failed",
			zap.String("fingerprint", op.Fingerprint),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return outcomeSkipped
	}
	return out
}

// retryOrFail routes a stage failure: permanent errors and exhausted
// budgets fail the opportunity, transient ones go back to releaseTo
// with a backoff stamp. The attempt count for the failing stage was
// already read off the opportunity before the work started.
func (e *Engine) retryOrFail(ctx context.Context, op model.Opportunity, stage, releaseTo model.Stage, cause error) (stageOutcome, error) {
	attempts := op.Attempts(stage)
	if !resilience.Retryable(cause) || attempts+1 >= e.opts.RetryBudget {
		err := e.store.Transition(ctx, store.Transition{
			Fingerprint: op.Fingerprint,
			From:        stage,
			To:          model.StageFailed,
			Outcome:     "gave up: " + string(stage),
			LastError:   cause.Error(),
		})
		if err != nil {
			return outcomeSkipped, err
		}
		zap.L().Warn("opportunity failed",
			zap.String("fingerprint", op.Fingerprint),
			zap.String("stage", string(stage)),
			zap.Int("attempts", attempts+1),
			zap.Error(cause),
		)
		return outcomeFailed, nil
	}

	retryAt := time.Now().UTC().Add(resilience.Backoff(attempts+1, e.opts.Retry))
	err := e.store.Transition(ctx, store.Transition{
		Fingerprint: op.Fingerprint,
		From:        stage,
		To:          releaseTo,
		Outcome:     fmt.Sprintf("retry %d", attempts+1),
		LastError:   cause.Error(),
		RetryAt:     &retryAt,
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return outcomeSkipped, nil
}
