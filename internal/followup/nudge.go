package followup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
)

// Nudge writes a ready-to-send reminder note into the outbox directory.
// Actual mail delivery stays manual.
type Nudge struct {
	outbox string
}

// NewNudge creates the action, making the outbox directory if needed.
func NewNudge(outbox string) (*Nudge, error) {
	if outbox == "" {
		return nil, eris.New("nudge action requires an outbox directory")
	}
	if err := os.MkdirAll(outbox, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create outbox %s", outbox)
	}
	return &Nudge{outbox: outbox}, nil
}

func (n *Nudge) Kind() model.FollowUpKind { return model.FollowUpNudgeEmail }

func (n *Nudge) Execute(_ context.Context, op *model.Opportunity, fu *model.FollowUp) (*model.FollowUp, error) {
	note := fmt.Sprintf(
		"Subject: Following up on my %s application\n\nApplied to %s at %s.\nSubmitted around %s, no response yet.\nListing: %s\n",
		op.Title, op.Title, op.Company,
		op.UpdatedAt.Format("2006-01-02"), op.URL,
	)
	path := filepath.Join(n.outbox, fmt.Sprintf("nudge-%s-%s.txt", op.Fingerprint, time.Now().UTC().Format("20060102")))
	if err := os.WriteFile(path, []byte(note), 0o644); err != nil {
		return nil, eris.Wrapf(err, "write nudge note for %s", op.Fingerprint)
	}
	zap.L().Info("nudge note written",
		zap.String("fingerprint", op.Fingerprint),
		zap.String("path", path),
	)
	return nil, nil
}
