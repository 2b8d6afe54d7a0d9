package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

// recentHistoryTurns bounds how much conversation context a classifier sees.
const recentHistoryTurns = 10

// ClassifyIntent asks the classifier for the intent and extracted fields,
// handing it the session context it needs for continuations and tie-breaks.
func ClassifyIntent(ctx context.Context, in *PipelineState, classifier contractx.Classifier) (*PipelineState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: pipeline session is nil", contractx.ErrValidation)
	}

	st := in.Session
	known := make(map[string]string, len(st.PendingFields))
	for k, v := range st.PendingFields {
		known[k] = v
	}

	history := st.Turns
	if len(history) > recentHistoryTurns {
		history = history[len(history)-recentHistoryTurns:]
	}

	result, err := classifier.Classify(ctx, contractx.ClassifyRequest{
		Text:          in.Text,
		PendingIntent: st.PendingIntent,
		KnownFields:   known,
		MissingFields: append([]string(nil), st.MissingFields...),
		HasDraft:      st.LastDraft != nil,
		History:       append([]contractx.Turn(nil), history...),
	})
	if err != nil {
		return nil, err
	}

	in.Result = result
	return in, nil
}
