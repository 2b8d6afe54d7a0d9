package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	statex "github.com/tanpawarit/leavedesk/agent/state"
	toolx "github.com/tanpawarit/leavedesk/agent/tool"
)

const (
	replyTransient = "Sorry, I'm having trouble reaching the system right now. Please try again in a moment."
	replyFallback  = "I can check your leave balance, draft a leave request email, edit the draft, or send it. What would you like to do?"
	replyNoDraft   = "There's no draft to send yet. Ask me to draft a leave request email first."
)

var clarifyQuestions = map[string]string{
	contractx.FieldEmployeeEmail: "What's your employee email address?",
	contractx.FieldStartDate:     "What's the first day of your leave (YYYY-MM-DD)?",
	contractx.FieldEndDate:       "What's the last day of your leave (YYYY-MM-DD)?",
	contractx.FieldReason:        "What's the reason for your leave?",
}

// Route runs the conversation state machine: given the classified intent and
// the session phase, it invokes the matching tool handler or asks for the
// missing fields. Recoverable failures become user-visible replies; only
// programming errors and unclassified IO failures propagate as errors.
func Route(ctx context.Context, in *PipelineState, tools *toolx.Registry) (*PipelineState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: pipeline session is nil", contractx.ErrValidation)
	}

	st := in.Session
	intent := in.Result.Intent
	fields := in.Result.Fields

	// Ambiguity between editing and drafting resolves to edit only when a
	// draft exists. Classifiers apply this too; the router is the backstop.
	if intent == contractx.IntentEditDraft && st.LastDraft == nil {
		intent = contractx.IntentDraftEmail
	}

	// A message during clarification that carries no fresh intent is the
	// answer to the pending question: merge its fields and re-evaluate the
	// suspended intent's completeness.
	if st.Phase == statex.PhaseAwaitingClarification &&
		(intent == contractx.IntentClarify || intent == contractx.IntentUnknown || intent == st.PendingIntent) {
		st.MergeFields(fields)
		intent = st.PendingIntent
		fields = st.PendingFields
	}

	switch intent {
	case contractx.IntentCheckBalance:
		return routeCheckBalance(ctx, in, tools, fields)
	case contractx.IntentDraftEmail:
		return routeDraftEmail(ctx, in, tools, fields)
	case contractx.IntentEditDraft:
		return routeEditDraft(in, tools, fields)
	case contractx.IntentSendEmail:
		return routeSendEmail(ctx, in, tools)
	default:
		// Unknown outside a clarification: prompt, state unchanged.
		in.Reply = replyFallback
		return in, nil
	}
}

func routeCheckBalance(ctx context.Context, in *PipelineState, tools *toolx.Registry, fields map[string]string) (*PipelineState, error) {
	st := in.Session

	if missing := tools.MissingFields(contractx.IntentCheckBalance, fields); len(missing) > 0 {
		if err := st.BeginClarification(contractx.IntentCheckBalance, fields, missing, in.Now); err != nil {
			return nil, err
		}
		in.Reply = clarifyQuestions[missing[0]]
		return in, nil
	}

	email := fields[contractx.FieldEmployeeEmail]
	balance, err := tools.CheckBalance(ctx, email)
	switch {
	case errors.Is(err, contractx.ErrNotFound):
		st.ResolveClarification(in.Now)
		in.Reply = fmt.Sprintf("I couldn't find an employee with the email %s. Could you double-check the address?", email)
	case errors.Is(err, contractx.ErrTransient):
		log.Warn().Err(err).Str("user_id", st.UserID).Msg("balance lookup failed")
		in.Reply = replyTransient
	case err != nil:
		return nil, err
	default:
		st.ResolveClarification(in.Now)
		in.Reply = fmt.Sprintf("%s has %.1f leave days remaining.", email, balance)
	}
	return in, nil
}

func routeDraftEmail(ctx context.Context, in *PipelineState, tools *toolx.Registry, fields map[string]string) (*PipelineState, error) {
	st := in.Session

	if missing := tools.MissingFields(contractx.IntentDraftEmail, fields); len(missing) > 0 {
		if err := st.BeginClarification(contractx.IntentDraftEmail, fields, missing, in.Now); err != nil {
			return nil, err
		}
		in.Reply = clarifyQuestions[missing[0]]
		return in, nil
	}

	draft, err := tools.ComposeDraft(ctx, fields, in.Now)
	switch {
	case errors.Is(err, contractx.ErrValidation):
		// Bad or reversed dates: drop them and ask again with the problem.
		retained := map[string]string{
			contractx.FieldEmployeeEmail: fields[contractx.FieldEmployeeEmail],
			contractx.FieldReason:        fields[contractx.FieldReason],
		}
		missing := []string{contractx.FieldStartDate, contractx.FieldEndDate}
		st.MissingFields = nil
		st.PendingFields = map[string]string{}
		if clErr := st.BeginClarification(contractx.IntentDraftEmail, retained, missing, in.Now); clErr != nil {
			return nil, clErr
		}
		in.Reply = fmt.Sprintf("%s. Please give me the start and end dates again as YYYY-MM-DD.", validationDetail(err))
	case errors.Is(err, contractx.ErrTransient):
		log.Warn().Err(err).Str("user_id", st.UserID).Msg("draft composition failed")
		in.Reply = replyTransient
	case err != nil:
		return nil, err
	default:
		st.SetLastDraft(&draft, in.Now)
		in.Reply = draftPreview(draft, "Here's your draft")
	}
	return in, nil
}

func routeEditDraft(in *PipelineState, tools *toolx.Registry, fields map[string]string) (*PipelineState, error) {
	st := in.Session

	instruction := strings.TrimSpace(fields[contractx.FieldInstruction])
	if instruction == "" {
		instruction = in.Text
	}

	revised := tools.EditDraft(*st.LastDraft, instruction)
	st.SetLastDraft(&revised, in.Now)
	in.Reply = draftPreview(revised, "Here's the revised draft")
	return in, nil
}

func routeSendEmail(ctx context.Context, in *PipelineState, tools *toolx.Registry) (*PipelineState, error) {
	st := in.Session

	if st.LastDraft == nil {
		in.Reply = replyNoDraft
		return in, nil
	}

	if err := tools.SendDraft(ctx, *st.LastDraft); err != nil {
		// Provider failure keeps the draft and the draft_pending phase.
		log.Warn().Err(err).Str("user_id", st.UserID).Msg("email send failed")
		in.Reply = "I couldn't send the email; your draft is still here. Please try again, or tell me what to change."
		return in, nil
	}

	recipient := st.LastDraft.Recipient
	st.ClearDraft(in.Now)
	in.Reply = fmt.Sprintf("Your leave request email has been sent to %s.", recipient)
	return in, nil
}

func draftPreview(d contractx.Draft, lead string) string {
	return fmt.Sprintf("%s:\n\nSubject: %s\n\n%s\nSay \"send it\" to send, or tell me what to change.", lead, d.Subject, d.Body)
}

// validationDetail strips the sentinel prefix so the user sees only the
// human-readable part of a validation error.
func validationDetail(err error) string {
	msg := err.Error()
	prefix := contractx.ErrValidation.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		msg = strings.TrimPrefix(msg, prefix)
	}
	if msg == "" {
		return "Those dates don't look right"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
