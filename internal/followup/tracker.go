package followup

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/pkg/notion"
)

// TrackerUpdate pushes the opportunity's current state to the Notion
// tracker database.
type TrackerUpdate struct {
	client notion.Client
	dbID   string
}

// NewTrackerUpdate creates the action.
func NewTrackerUpdate(client notion.Client, dbID string) (*TrackerUpdate, error) {
	if dbID == "" {
		return nil, eris.New("tracker update requires a database id")
	}
	return &TrackerUpdate{client: client, dbID: dbID}, nil
}

func (t *TrackerUpdate) Kind() model.FollowUpKind { return model.FollowUpTrackerUpdate }

func (t *TrackerUpdate) Execute(ctx context.Context, op *model.Opportunity, fu *model.FollowUp) (*model.FollowUp, error) {
	if err := notion.UpsertOpportunity(ctx, t.client, t.dbID, *op); err != nil {
		return nil, eris.Wrapf(err, "update tracker for %s", op.Fingerprint)
	}
	zap.L().Info("tracker updated",
		zap.String("fingerprint", op.Fingerprint),
		zap.String("stage", string(op.Stage)),
	)
	return nil, nil
}
