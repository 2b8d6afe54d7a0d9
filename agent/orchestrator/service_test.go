package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	classifierx "github.com/tanpawarit/leavedesk/agent/classifier"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	statex "github.com/tanpawarit/leavedesk/agent/state"
	toolx "github.com/tanpawarit/leavedesk/agent/tool"
)

type fakeLeaveStore struct {
	balance    float64
	balanceErr error
	created    int
}

func (f *fakeLeaveStore) LeaveBalance(ctx context.Context, employeeEmail string) (float64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeLeaveStore) CreatePendingRequest(ctx context.Context, employeeEmail string, start, end time.Time, reason string) (int64, error) {
	f.created++
	return int64(f.created), nil
}

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, recipient, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recipient)
	return nil
}

type fakeClassifier struct {
	result contractx.ClassifyResult
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResult, error) {
	if f.err != nil {
		return contractx.ClassifyResult{}, f.err
	}
	return f.result, nil
}

type fakeStore struct {
	saveErr error
	saved   int
}

func (f *fakeStore) Load(ctx context.Context, userID string) (*statex.SessionState, error) {
	return nil, statex.ErrStateNotFound
}

func (f *fakeStore) Save(ctx context.Context, st *statex.SessionState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved++
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, userID string) error {
	return nil
}

func newTestOrchestrator(t *testing.T, store statex.Store, cls contractx.Classifier, leaves contractx.LeaveStore, sender contractx.EmailSender) *Orchestrator {
	t.Helper()
	tools, err := toolx.NewRegistry(leaves, sender, toolx.Config{Recipient: "manager@example.com"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	o, err := New(store, cls, tools)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	defer store.Close()
	o := newTestOrchestrator(t, store, classifierx.NewRules(), &fakeLeaveStore{}, &fakeSender{})

	_, err := o.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}

	_, err = o.HandleMessage(context.Background(), "user-1", "   ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHandleMessageBalanceTurn(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	defer store.Close()
	o := newTestOrchestrator(t, store, classifierx.NewRules(), &fakeLeaveStore{balance: 15.5}, &fakeSender{})

	reply, err := o.HandleMessage(context.Background(), "user-1", "What's my leave balance? john.doe@example.com")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply != "john.doe@example.com has 15.5 leave days remaining." {
		t.Fatalf("reply = %q", reply)
	}

	// Both turns were persisted.
	st, err := store.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(st.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(st.Turns))
	}
	if st.Turns[0].Role != contractx.RoleUser || st.Turns[1].Role != contractx.RoleAssistant {
		t.Fatalf("unexpected turn roles: %+v", st.Turns)
	}
}

func TestHandleMessageDraftThenSendFlow(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	defer store.Close()
	leaves := &fakeLeaveStore{balance: 15.5}
	sender := &fakeSender{}
	o := newTestOrchestrator(t, store, classifierx.NewRules(), leaves, sender)
	ctx := context.Background()

	reply, err := o.HandleMessage(ctx, "user-1", "Draft a leave email for john.doe@example.com from 2026-04-01 to 2026-04-03 because of a family trip")
	if err != nil {
		t.Fatalf("draft turn error = %v", err)
	}
	if !strings.Contains(reply, "Here's your draft") {
		t.Fatalf("draft reply = %q", reply)
	}
	if leaves.created != 1 {
		t.Fatalf("expected one recorded pending request, got %d", leaves.created)
	}

	st, err := store.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Phase != statex.PhaseDraftPending || st.LastDraft == nil {
		t.Fatalf("expected draft_pending with a draft, got phase=%s", st.Phase)
	}

	reply, err = o.HandleMessage(ctx, "user-1", "make it more casual")
	if err != nil {
		t.Fatalf("edit turn error = %v", err)
	}
	if !strings.Contains(reply, "Here's the revised draft") {
		t.Fatalf("edit reply = %q", reply)
	}

	reply, err = o.HandleMessage(ctx, "user-1", "send it")
	if err != nil {
		t.Fatalf("send turn error = %v", err)
	}
	if reply != "Your leave request email has been sent to manager@example.com." {
		t.Fatalf("send reply = %q", reply)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.sent))
	}

	st, err = store.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Phase != statex.PhaseIdle || st.LastDraft != nil {
		t.Fatalf("expected idle with no draft after send, got phase=%s", st.Phase)
	}
}

func TestHandleMessageClarificationAcrossTurns(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	defer store.Close()
	o := newTestOrchestrator(t, store, classifierx.NewRules(), &fakeLeaveStore{}, &fakeSender{})
	ctx := context.Background()

	reply, err := o.HandleMessage(ctx, "user-1", "I need to request leave for john.doe@example.com from 2026-04-01 to 2026-04-03")
	if err != nil {
		t.Fatalf("first turn error = %v", err)
	}
	if reply != "What's the reason for your leave?" {
		t.Fatalf("clarification question = %q", reply)
	}

	reply, err = o.HandleMessage(ctx, "user-1", "a family trip")
	if err != nil {
		t.Fatalf("answer turn error = %v", err)
	}
	if !strings.Contains(reply, "Here's your draft") {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(reply, "a family trip") {
		t.Fatalf("reply missing reason: %q", reply)
	}
}

func TestHandleMessageDistinctUsersAreIsolated(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	defer store.Close()
	o := newTestOrchestrator(t, store, classifierx.NewRules(), &fakeLeaveStore{}, &fakeSender{})
	ctx := context.Background()

	if _, err := o.HandleMessage(ctx, "user-1", "I need to request leave for john.doe@example.com from 2026-04-01 to 2026-04-03"); err != nil {
		t.Fatalf("user-1 turn error = %v", err)
	}

	reply, err := o.HandleMessage(ctx, "user-2", "send it")
	if err != nil {
		t.Fatalf("user-2 turn error = %v", err)
	}
	if !strings.Contains(reply, "no draft to send") {
		t.Fatalf("user-2 must not see user-1's state, reply = %q", reply)
	}
}

func TestHandleMessageClassifierErrorPropagates(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	defer store.Close()
	classifyErr := errors.New("model unreachable")
	o := newTestOrchestrator(t, store, &fakeClassifier{err: classifyErr}, &fakeLeaveStore{}, &fakeSender{})

	_, err := o.HandleMessage(context.Background(), "user-1", "hello")
	if !errors.Is(err, classifyErr) {
		t.Fatalf("expected classifier error, got %v", err)
	}
}

func TestHandleMessageSaveErrorPropagates(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("save failed")
	store := &fakeStore{saveErr: saveErr}
	o := newTestOrchestrator(t, store, classifierx.NewRules(), &fakeLeaveStore{}, &fakeSender{})

	_, err := o.HandleMessage(context.Background(), "user-1", "hello")
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
}
