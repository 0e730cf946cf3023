package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/store"
)

// Requeue sends a failed or rejected opportunity back to discovered
// for another pass. Manual operation, invoked from the CLI.
func Requeue(ctx context.Context, st store.Store, fingerprint string) error {
	op, err := st.GetOpportunity(ctx, fingerprint)
	if err != nil {
		return err
	}
	if op.Stage != model.StageFailed && op.Stage != model.StageRejected {
		return eris.Errorf("cannot requeue from %s, only failed or rejected", op.Stage)
	}
	err = st.Transition(ctx, store.Transition{
		Fingerprint: fingerprint,
		From:        op.Stage,
		To:          model.StageDiscovered,
		Outcome:     "manual requeue",
	})
	if err != nil {
		return err
	}
	zap.L().Info("opportunity requeued",
		zap.String("fingerprint", fingerprint),
		zap.String("from", string(op.Stage)),
	)
	return nil
}

// Withdraw terminates an opportunity and cancels its pending
// follow-ups. Valid from any non-terminal stage plus submitted.
func Withdraw(ctx context.Context, st store.Store, fingerprint string) error {
	op, err := st.GetOpportunity(ctx, fingerprint)
	if err != nil {
		return err
	}
	if !model.CanTransition(op.Stage, model.StageWithdrawn) {
		return eris.Errorf("cannot withdraw from %s", op.Stage)
	}
	err = st.Transition(ctx, store.Transition{
		Fingerprint: fingerprint,
		From:        op.Stage,
		To:          model.StageWithdrawn,
		Outcome:     "manual withdrawal",
	})
	if err != nil {
		return err
	}
	cancelled, err := st.CancelFollowUps(ctx, fingerprint)
	if err != nil {
		return err
	}
	zap.L().Info("opportunity withdrawn",
		zap.String("fingerprint", fingerprint),
		zap.Int("follow_ups_cancelled", cancelled),
	)
	return nil
}
