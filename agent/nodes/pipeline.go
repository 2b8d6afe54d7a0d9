// Package nodes contains the pipeline steps HandleMessage runs in order:
// validate, load state, classify, route, save, finalize. Each step is a free
// function over PipelineState so every one is testable in isolation.
package nodes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	statex "github.com/tanpawarit/leavedesk/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidUser    = errors.New("user id is empty")
)

type Request struct {
	UserID string
	Text   string
}

type Response struct {
	Reply string
}

type PipelineState struct {
	UserID string
	Text   string
	Now    time.Time

	Session *statex.SessionState
	Result  contractx.ClassifyResult

	Reply string
}

func ValidateRequest(in Request, nowFn func() time.Time) (*PipelineState, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &PipelineState{
		UserID: userID,
		Text:   text,
		Now:    nowFn().UTC(),
	}, nil
}

func FinalizeReply(in *PipelineState) (Response, error) {
	if in == nil {
		return Response{}, fmt.Errorf("%w: pipeline state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return Response{}, fmt.Errorf("%w: router produced an empty reply", contractx.ErrValidation)
	}
	return Response{Reply: reply}, nil
}
