package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/gateway"
	"github.com/sells-group/apply-cli/internal/materials"
	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/store"
	"github.com/sells-group/apply-cli/internal/submit"
)

// aiSource is the gateway source name shared by the resume tailor and
// the letter writer; both talk to the same provider and share its
// budget and breaker.
const aiSource = "anthropic"

// handleDiscovered scores the listing against the preference rules.
func (e *Engine) handleDiscovered(ctx context.Context, op model.Opportunity) (stageOutcome, error) {
	decision := e.filter.Evaluate(op)
	if !decision.Accepted {
		err := e.store.Transition(ctx, store.Transition{
			Fingerprint: op.Fingerprint,
			From:        model.StageDiscovered,
			To:          model.StageRejected,
			Outcome:     decision.Reason,
		})
		if err != nil {
			return outcomeSkipped, err
		}
		zap.L().Info("listing rejected",
			zap.String("fingerprint", op.Fingerprint),
			zap.String("reason", decision.Reason),
			zap.Float64("score", decision.Score),
		)
		return outcomeAdvanced, nil
	}

	err := e.store.Transition(ctx, store.Transition{
		Fingerprint: op.Fingerprint,
		From:        model.StageDiscovered,
		To:          model.StageFiltered,
		Outcome:     fmt.Sprintf("score %.0f", decision.Score),
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return outcomeAdvanced, nil
}

// handleFiltered claims the row for document generation. The claim is
// its own transition so two workers cannot both start tailoring.
func (e *Engine) handleFiltered(ctx context.Context, op model.Opportunity) (stageOutcome, error) {
	err := e.store.Transition(ctx, store.Transition{
		Fingerprint: op.Fingerprint,
		From:        model.StageFiltered,
		To:          model.StageTailoring,
		Outcome:     "claimed",
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return outcomeAdvanced, nil
}

// handleTailoring generates the tailored resume. A transient failure
// releases the row back to filtered with a backoff stamp; the re-claim
// path bumps the tailoring attempt count.
func (e *Engine) handleTailoring(ctx context.Context, op model.Opportunity) (stageOutcome, error) {
	resume, err := gateway.CallVal(ctx, e.gw, aiSource, "tailor", func(ctx context.Context) (string, error) {
		return e.tailor.Tailor(ctx, e.profile, &op)
	})
	if err != nil {
		return e.retryOrFail(ctx, op, model.StageTailoring, model.StageFiltered, err)
	}

	ref, artifact, err := e.saveArtifact(ctx, op.Fingerprint, model.StageTailoring, resume)
	if err != nil {
		return outcomeSkipped, err
	}
	err = e.store.Transition(ctx, store.Transition{
		Fingerprint: op.Fingerprint,
		From:        model.StageTailoring,
		To:          model.StageLetterDrafting,
		Outcome:     "resume ready",
		Artifact:    artifact,
	})
	if err != nil {
		return outcomeSkipped, err
	}
	zap.L().Info("resume tailored",
		zap.String("fingerprint", op.Fingerprint),
		zap.String("ref", ref),
	)
	return outcomeAdvanced, nil
}

// handleLetterDrafting drafts the cover letter. Transient failures
// retry on the stage's self-edge.
func (e *Engine) handleLetterDrafting(ctx context.Context, op model.Opportunity) (stageOutcome, error) {
	letter, err := gateway.CallVal(ctx, e.gw, aiSource, "draft", func(ctx context.Context) (materials.CoverLetter, error) {
		return e.letters.Draft(ctx, e.profile, &op)
	})
	if err != nil {
		return e.retryOrFail(ctx, op, model.StageLetterDrafting, model.StageLetterDrafting, err)
	}

	ref, artifact, err := e.saveArtifact(ctx, op.Fingerprint, model.StageLetterDrafting, letter.Render())
	if err != nil {
		return outcomeSkipped, err
	}
	err = e.store.Transition(ctx, store.Transition{
		Fingerprint: op.Fingerprint,
		From:        model.StageLetterDrafting,
		To:          model.StageSubmitting,
		Outcome:     "letter ready",
		Artifact:    artifact,
	})
	if err != nil {
		return outcomeSkipped, err
	}
	zap.L().Info("letter drafted",
		zap.String("fingerprint", op.Fingerprint),
		zap.String("ref", ref),
	)
	return outcomeAdvanced, nil
}

// handleSubmitting delivers the application. The idempotency key is
// fixed when the row enters submitting: it is derived from the
// letter-drafting attempt count, which no submitting retry touches.
// Every retry of the same logical submission (self-edge, crash between
// delivery and commit) replays the same key and the receiver
// deduplicates; only a fresh pass through letter drafting mints a new
// one.
func (e *Engine) handleSubmitting(ctx context.Context, op model.Opportunity) (stageOutcome, error) {
	if e.opts.DailyLimit > 0 {
		midnight := time.Now().UTC().Truncate(24 * time.Hour)
		submitted, err := e.store.CountSubmittedSince(ctx, midnight)
		if err != nil {
			return outcomeSkipped, err
		}
		if submitted >= e.opts.DailyLimit {
			// Not an error. The row stays queued for tomorrow.
			zap.L().Info("daily submission limit reached",
				zap.Int("limit", e.opts.DailyLimit),
				zap.String("fingerprint", op.Fingerprint),
			)
			return outcomeSkipped, nil
		}
	}

	resumeRef, err := e.store.LatestArtifact(ctx, op.Fingerprint, model.StageTailoring)
	if err != nil {
		return outcomeSkipped, eris.Wrap(err, "load resume artifact")
	}
	letterRef, err := e.store.LatestArtifact(ctx, op.Fingerprint, model.StageLetterDrafting)
	if err != nil {
		return outcomeSkipped, eris.Wrap(err, "load letter artifact")
	}

	pkg := submit.Package{
		Opportunity:    &op,
		ResumeRef:      resumeRef.Ref,
		LetterRef:      letterRef.Ref,
		IdempotencyKey: submit.IdempotencyKey(op.Fingerprint, op.Attempts(model.StageLetterDrafting)),
	}
	receipt, err := gateway.CallVal(ctx, e.gw, e.channel.Name(), "submit", func(ctx context.Context) (submit.Receipt, error) {
		return e.channel.Submit(ctx, pkg)
	})
	if err != nil {
		return e.retryOrFail(ctx, op, model.StageSubmitting, model.StageSubmitting, err)
	}

	now := time.Now().UTC()
	followUp := &model.FollowUp{
		ID:          uuid.NewString(),
		Fingerprint: op.Fingerprint,
		DueAt:       now.Add(e.opts.FollowUpAfter),
		Kind:        model.FollowUpStatusCheck,
		Status:      model.FollowUpPending,
		CreatedAt:   now,
	}
	err = e.store.Transition(ctx, store.Transition{
		Fingerprint: op.Fingerprint,
		From:        model.StageSubmitting,
		To:          model.StageSubmitted,
		Outcome:     "confirmation " + receipt.ConfirmationID,
		FollowUp:    followUp,
	})
	if err != nil {
		return outcomeSkipped, err
	}
	zap.L().Info("application submitted",
		zap.String("fingerprint", op.Fingerprint),
		zap.String("confirmation", receipt.ConfirmationID),
		zap.Bool("deduplicated", receipt.Duplicate),
	)
	return outcomeAdvanced, nil
}

// saveArtifact writes the document file and builds the artifact ref
// for the transition. The file name carries the version the store will
// assign; the stage guard means a single writer per row.
func (e *Engine) saveArtifact(ctx context.Context, fingerprint string, stage model.Stage, content string) (string, *model.ArtifactRef, error) {
	version := 1
	latest, err := e.store.LatestArtifact(ctx, fingerprint, stage)
	if err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", nil, eris.Wrap(err, "read latest artifact")
	}

	ref, err := e.ws.Save(fingerprint, stage, version, content)
	if err != nil {
		return "", nil, err
	}
	return ref, &model.ArtifactRef{
		Fingerprint: fingerprint,
		Stage:       stage,
		Ref:         ref,
	}, nil
}
