// Package followup implements the actions fired for due follow-ups.
package followup

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/model"
)

// Action executes one follow-up kind. It may return a successor
// follow-up to schedule, which is how a status check chains a nudge.
type Action interface {
	Kind() model.FollowUpKind
	Execute(ctx context.Context, op *model.Opportunity, fu *model.FollowUp) (*model.FollowUp, error)
}

// Registry dispatches follow-ups to their action by kind.
type Registry struct {
	actions map[model.FollowUpKind]Action
}

// NewRegistry indexes the given actions.
func NewRegistry(actions ...Action) *Registry {
	reg := &Registry{actions: make(map[model.FollowUpKind]Action, len(actions))}
	for _, a := range actions {
		reg.actions[a.Kind()] = a
	}
	return reg
}

// Execute runs the action registered for the follow-up's kind.
func (r *Registry) Execute(ctx context.Context, op *model.Opportunity, fu *model.FollowUp) (*model.FollowUp, error) {
	action, ok := r.actions[fu.Kind]
	if !ok {
		return nil, eris.Errorf("no action registered for follow-up kind %s", fu.Kind)
	}
	return action.Execute(ctx, op, fu)
}
