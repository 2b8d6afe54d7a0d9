// Package orchestrator wires the pipeline nodes into the chat entrypoint and
// serializes handling per user so concurrent messages from one user cannot
// interleave state transitions. Distinct users run fully in parallel.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	nodex "github.com/tanpawarit/leavedesk/agent/nodes"
	statex "github.com/tanpawarit/leavedesk/agent/state"
	toolx "github.com/tanpawarit/leavedesk/agent/tool"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidUser    = nodex.ErrInvalidUser
)

type Orchestrator struct {
	store      statex.Store
	classifier contractx.Classifier
	tools      *toolx.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

func New(store statex.Store, classifier contractx.Classifier, tools *toolx.Registry) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if tools == nil {
		return nil, errors.New("tool registry is required")
	}

	return &Orchestrator{
		store:      store,
		classifier: classifier,
		tools:      tools,
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}, nil
}

// HandleMessage runs one chat turn end to end and returns the reply text.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID string, text string) (string, error) {
	in, err := nodex.ValidateRequest(nodex.Request{UserID: userID, Text: text}, o.now)
	if err != nil {
		return "", err
	}

	lock := o.sessionLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	if in, err = nodex.LoadOrCreateState(ctx, in, o.store); err != nil {
		return "", err
	}
	if in, err = nodex.ClassifyIntent(ctx, in, o.classifier); err != nil {
		return "", err
	}
	if in, err = nodex.Route(ctx, in, o.tools); err != nil {
		return "", err
	}
	if in, err = nodex.SaveState(ctx, in, o.store); err != nil {
		return "", err
	}

	out, err := nodex.FinalizeReply(in)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// sessionLock returns the per-user mutex, creating it on first use. Locks are
// never removed; one mutex per active user is cheap next to the session data.
func (o *Orchestrator) sessionLock(userID string) *sync.Mutex {
	key := strings.TrimSpace(userID)
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	return lock
}
