// Package submit delivers finished applications to their destination.
package submit

import (
	"context"
	"fmt"

	"github.com/sells-group/apply-cli/internal/model"
)

// Package is everything a channel needs to deliver one application.
type Package struct {
	Opportunity *model.Opportunity
	ResumeRef   string
	LetterRef   string
	// IdempotencyKey is fixed for the lifetime of one logical
	// submission; every delivery retry replays it so the receiver can
	// deduplicate.
	IdempotencyKey string
}

// Receipt is the channel's proof of delivery.
type Receipt struct {
	ConfirmationID string
	Duplicate      bool
}

// Channel submits one application package.
type Channel interface {
	Name() string
	Submit(ctx context.Context, pkg Package) (Receipt, error)
}

// IdempotencyKey derives the delivery key for one logical submission.
// The epoch must not change while delivery is being retried; callers
// pass a counter that only moves when a genuinely new submission run
// begins.
func IdempotencyKey(fingerprint string, epoch int) string {
	return fmt.Sprintf("%s:%d", fingerprint, epoch)
}
