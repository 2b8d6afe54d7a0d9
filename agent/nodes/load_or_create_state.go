package nodes

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	statex "github.com/tanpawarit/leavedesk/agent/state"
)

// LoadOrCreateState fetches the user's session or starts a fresh one on the
// first message from a user id.
func LoadOrCreateState(ctx context.Context, in *PipelineState, store statex.Store) (*PipelineState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: pipeline state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.UserID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		st = statex.NewSessionState(in.UserID, in.Now)
	}

	in.Session = st
	return in, nil
}
