package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	statex "github.com/tanpawarit/leavedesk/agent/state"
	toolx "github.com/tanpawarit/leavedesk/agent/tool"
)

type fakeLeaveStore struct {
	balance    float64
	balanceErr error
	createErr  error
	created    int
}

func (f *fakeLeaveStore) LeaveBalance(ctx context.Context, employeeEmail string) (float64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeLeaveStore) CreatePendingRequest(ctx context.Context, employeeEmail string, start, end time.Time, reason string) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created++
	return int64(f.created), nil
}

type fakeSender struct {
	err   error
	calls int
}

func (f *fakeSender) Send(ctx context.Context, recipient, subject, body string) error {
	f.calls++
	return f.err
}

func newTestPipeline(t *testing.T, leaves contractx.LeaveStore, sender contractx.EmailSender) *toolx.Registry {
	t.Helper()
	r, err := toolx.NewRegistry(leaves, sender, toolx.Config{Recipient: "manager@example.com"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func pipelineState(userID string, st *statex.SessionState, text string, result contractx.ClassifyResult) *PipelineState {
	return &PipelineState{
		UserID:  userID,
		Text:    text,
		Now:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Session: st,
		Result:  result,
	}
}

func TestRouteDraftMissingFieldsAsksFirstQuestion(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{}, &fakeSender{})
	st := statex.NewSessionState("user-1", time.Now())

	in := pipelineState("user-1", st, "I want to take some leave", contractx.ClassifyResult{
		Intent: contractx.IntentDraftEmail,
		Fields: map[string]string{contractx.FieldEmployeeEmail: "john.doe@example.com"},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if st.Phase != statex.PhaseAwaitingClarification {
		t.Fatalf("phase = %s, want awaiting_clarification", st.Phase)
	}
	if st.PendingIntent != contractx.IntentDraftEmail {
		t.Fatalf("pending intent = %s", st.PendingIntent)
	}
	if out.Reply != "What's the first day of your leave (YYYY-MM-DD)?" {
		t.Fatalf("reply = %q", out.Reply)
	}
}

func TestRouteClarificationContinuationCompletesDraft(t *testing.T) {
	t.Parallel()

	leaves := &fakeLeaveStore{}
	tools := newTestPipeline(t, leaves, &fakeSender{})
	now := time.Now()

	st := statex.NewSessionState("user-1", now)
	known := map[string]string{
		contractx.FieldEmployeeEmail: "john.doe@example.com",
		contractx.FieldStartDate:     "2026-04-01",
		contractx.FieldEndDate:       "2026-04-03",
	}
	if err := st.BeginClarification(contractx.IntentDraftEmail, known, []string{contractx.FieldReason}, now); err != nil {
		t.Fatalf("BeginClarification() error = %v", err)
	}

	in := pipelineState("user-1", st, "family trip", contractx.ClassifyResult{
		Intent: contractx.IntentClarify,
		Fields: map[string]string{contractx.FieldReason: "family trip"},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if st.Phase != statex.PhaseDraftPending {
		t.Fatalf("phase = %s, want draft_pending", st.Phase)
	}
	if st.LastDraft == nil {
		t.Fatal("expected a draft on the session")
	}
	if !strings.Contains(out.Reply, "Here's your draft") {
		t.Fatalf("reply = %q", out.Reply)
	}
	if !strings.Contains(out.Reply, "family trip") {
		t.Fatalf("reply missing reason: %q", out.Reply)
	}
	if leaves.created != 1 {
		t.Fatalf("expected one recorded pending request, got %d", leaves.created)
	}
}

func TestRouteCheckBalance(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{balance: 15.5}, &fakeSender{})
	st := statex.NewSessionState("user-1", time.Now())

	in := pipelineState("user-1", st, "check balance for john.doe@example.com", contractx.ClassifyResult{
		Intent: contractx.IntentCheckBalance,
		Fields: map[string]string{contractx.FieldEmployeeEmail: "john.doe@example.com"},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if out.Reply != "john.doe@example.com has 15.5 leave days remaining." {
		t.Fatalf("reply = %q", out.Reply)
	}
	if st.Phase != statex.PhaseIdle {
		t.Fatalf("phase = %s, want idle", st.Phase)
	}
}

func TestRouteCheckBalanceUnknownEmployee(t *testing.T) {
	t.Parallel()

	leaves := &fakeLeaveStore{balanceErr: fmt.Errorf("%w: employee", contractx.ErrNotFound)}
	tools := newTestPipeline(t, leaves, &fakeSender{})
	st := statex.NewSessionState("user-1", time.Now())

	in := pipelineState("user-1", st, "balance for ghost@example.com", contractx.ClassifyResult{
		Intent: contractx.IntentCheckBalance,
		Fields: map[string]string{contractx.FieldEmployeeEmail: "ghost@example.com"},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if !strings.Contains(out.Reply, "couldn't find an employee") {
		t.Fatalf("reply = %q", out.Reply)
	}
	if st.Phase != statex.PhaseIdle {
		t.Fatalf("phase = %s, want idle", st.Phase)
	}
}

func TestRouteDraftValidationReclarifiesDates(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{}, &fakeSender{})
	st := statex.NewSessionState("user-1", time.Now())

	in := pipelineState("user-1", st, "draft it", contractx.ClassifyResult{
		Intent: contractx.IntentDraftEmail,
		Fields: map[string]string{
			contractx.FieldEmployeeEmail: "john.doe@example.com",
			contractx.FieldStartDate:     "2026-04-03",
			contractx.FieldEndDate:       "2026-04-01",
			contractx.FieldReason:        "family trip",
		},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if st.Phase != statex.PhaseAwaitingClarification {
		t.Fatalf("phase = %s, want awaiting_clarification", st.Phase)
	}
	if !strings.Contains(out.Reply, "start and end dates again") {
		t.Fatalf("reply = %q", out.Reply)
	}
	// Email and reason survive; the bad dates do not.
	if st.PendingFields[contractx.FieldEmployeeEmail] != "john.doe@example.com" {
		t.Fatalf("email dropped: %v", st.PendingFields)
	}
	if st.PendingFields[contractx.FieldReason] != "family trip" {
		t.Fatalf("reason dropped: %v", st.PendingFields)
	}
	if st.PendingFields[contractx.FieldStartDate] != "" || st.PendingFields[contractx.FieldEndDate] != "" {
		t.Fatalf("bad dates retained: %v", st.PendingFields)
	}
	if st.LastDraft != nil {
		t.Fatal("no draft must be created from invalid dates")
	}
}

func TestRouteEditWithoutDraftFallsBackToDrafting(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{}, &fakeSender{})
	st := statex.NewSessionState("user-1", time.Now())

	in := pipelineState("user-1", st, "make it shorter", contractx.ClassifyResult{
		Intent: contractx.IntentEditDraft,
		Fields: map[string]string{contractx.FieldInstruction: "make it shorter"},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if st.Phase != statex.PhaseAwaitingClarification {
		t.Fatalf("phase = %s, want awaiting_clarification", st.Phase)
	}
	if st.PendingIntent != contractx.IntentDraftEmail {
		t.Fatalf("pending intent = %s, want draft_email", st.PendingIntent)
	}
	if out.Reply != "What's your employee email address?" {
		t.Fatalf("reply = %q", out.Reply)
	}
}

func TestRouteEditRevisesDraft(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{}, &fakeSender{})
	now := time.Now()
	st := statex.NewSessionState("user-1", now)

	draft, err := toolx.ComposeDraft(contractx.DraftParams{
		EmployeeEmail: "john.doe@example.com",
		StartDate:     "2026-04-01",
		EndDate:       "2026-04-03",
		Reason:        "family trip",
	}, "manager@example.com", now)
	if err != nil {
		t.Fatalf("ComposeDraft() error = %v", err)
	}
	st.SetLastDraft(&draft, now)

	in := pipelineState("user-1", st, "make it more casual", contractx.ClassifyResult{
		Intent: contractx.IntentEditDraft,
		Fields: map[string]string{contractx.FieldInstruction: "make it more casual"},
	})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if !strings.Contains(out.Reply, "Here's the revised draft") {
		t.Fatalf("reply = %q", out.Reply)
	}
	if st.LastDraft.Params.Tone != toolx.ToneCasual {
		t.Fatalf("tone = %q, want casual", st.LastDraft.Params.Tone)
	}
	if st.Phase != statex.PhaseDraftPending {
		t.Fatalf("phase = %s, want draft_pending", st.Phase)
	}
}

func TestRouteSendWithoutDraft(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	tools := newTestPipeline(t, &fakeLeaveStore{}, sender)
	st := statex.NewSessionState("user-1", time.Now())

	in := pipelineState("user-1", st, "send it", contractx.ClassifyResult{Intent: contractx.IntentSendEmail})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if !strings.Contains(out.Reply, "no draft to send") {
		t.Fatalf("reply = %q", out.Reply)
	}
	if sender.calls != 0 {
		t.Fatal("nothing must be sent without a draft")
	}
}

func TestRouteSendFailureKeepsDraft(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: fmt.Errorf("%w: rejected", contractx.ErrPermanent)}
	tools := newTestPipeline(t, &fakeLeaveStore{}, sender)
	now := time.Now()
	st := statex.NewSessionState("user-1", now)
	st.SetLastDraft(&contractx.Draft{ID: "d1", Recipient: "manager@example.com", Subject: "s", Body: "b"}, now)

	in := pipelineState("user-1", st, "send it", contractx.ClassifyResult{Intent: contractx.IntentSendEmail})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if !strings.Contains(out.Reply, "your draft is still here") {
		t.Fatalf("reply = %q", out.Reply)
	}
	if st.LastDraft == nil {
		t.Fatal("draft must survive a failed send")
	}
	if st.Phase != statex.PhaseDraftPending {
		t.Fatalf("phase = %s, want draft_pending", st.Phase)
	}
}

func TestRouteSendSuccessClearsDraft(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	tools := newTestPipeline(t, &fakeLeaveStore{}, sender)
	now := time.Now()
	st := statex.NewSessionState("user-1", now)
	st.SetLastDraft(&contractx.Draft{ID: "d1", Recipient: "manager@example.com", Subject: "s", Body: "b"}, now)

	in := pipelineState("user-1", st, "send it", contractx.ClassifyResult{Intent: contractx.IntentSendEmail})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if out.Reply != "Your leave request email has been sent to manager@example.com." {
		t.Fatalf("reply = %q", out.Reply)
	}
	if st.LastDraft != nil {
		t.Fatal("draft must be cleared after send")
	}
	if st.Phase != statex.PhaseIdle {
		t.Fatalf("phase = %s, want idle", st.Phase)
	}

	// A repeated send finds no draft instead of sending twice.
	in = pipelineState("user-1", st, "send it", contractx.ClassifyResult{Intent: contractx.IntentSendEmail})
	out, err = Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if !strings.Contains(out.Reply, "no draft to send") {
		t.Fatalf("reply = %q", out.Reply)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one send, got %d", sender.calls)
	}
}

func TestRouteUnknownLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{}, &fakeSender{})
	now := time.Now()
	st := statex.NewSessionState("user-1", now)
	st.SetLastDraft(&contractx.Draft{ID: "d1"}, now)

	in := pipelineState("user-1", st, "what's the weather", contractx.ClassifyResult{Intent: contractx.IntentUnknown})
	out, err := Route(context.Background(), in, tools)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	if out.Reply != replyFallback {
		t.Fatalf("reply = %q", out.Reply)
	}
	if st.Phase != statex.PhaseDraftPending || st.LastDraft == nil {
		t.Fatal("unknown intent must not disturb the held draft")
	}
}

func TestRouteNilSession(t *testing.T) {
	t.Parallel()

	tools := newTestPipeline(t, &fakeLeaveStore{}, &fakeSender{})
	if _, err := Route(context.Background(), &PipelineState{}, tools); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
