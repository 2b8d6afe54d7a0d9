package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	statex "github.com/tanpawarit/leavedesk/agent/state"
)

// SaveState records both turns, validates the session invariants, and
// persists. Nothing is saved if validation fails, so a routing bug cannot
// corrupt stored state.
func SaveState(ctx context.Context, in *PipelineState, store statex.Store) (*PipelineState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: pipeline session is nil", contractx.ErrValidation)
	}

	in.Session.AppendTurn(contractx.RoleUser, in.Text, in.Now)
	if in.Reply != "" {
		in.Session.AppendTurn(contractx.RoleAssistant, in.Reply, in.Now)
	}

	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}
