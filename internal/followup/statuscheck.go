package followup

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
)

// StatusCheck probes the listing URL to see whether the posting is
// still live. While it is, a nudge gets chained a few days out; a
// removed posting ends the chain.
type StatusCheck struct {
	client     *http.Client
	nudgeAfter time.Duration
}

// NewStatusCheck creates the action. nudgeAfter controls how far out
// the chained nudge is scheduled; zero disables chaining.
func NewStatusCheck(timeout, nudgeAfter time.Duration) *StatusCheck {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StatusCheck{
		client:     &http.Client{Timeout: timeout},
		nudgeAfter: nudgeAfter,
	}
}

func (s *StatusCheck) Kind() model.FollowUpKind { return model.FollowUpStatusCheck }

func (s *StatusCheck) Execute(ctx context.Context, op *model.Opportunity, fu *model.FollowUp) (*model.FollowUp, error) {
	if op.URL == "" {
		zap.L().Info("status check skipped, no listing URL",
			zap.String("fingerprint", op.Fingerprint),
		)
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, op.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build status check request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "probe listing %s", op.URL)
	}
	_ = resp.Body.Close()

	live := resp.StatusCode < 400
	zap.L().Info("status check",
		zap.String("fingerprint", op.Fingerprint),
		zap.String("url", op.URL),
		zap.Int("status", resp.StatusCode),
		zap.Bool("listing_live", live),
	)

	if !live || s.nudgeAfter == 0 {
		return nil, nil
	}
	return &model.FollowUp{
		ID:          uuid.NewString(),
		Fingerprint: op.Fingerprint,
		DueAt:       time.Now().UTC().Add(s.nudgeAfter),
		Kind:        model.FollowUpNudgeEmail,
		Status:      model.FollowUpPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
