// Package tool holds the domain operations the router dispatches to:
// balance lookup, draft synthesis, draft editing, and email sending.
package tool

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	retryx "github.com/tanpawarit/leavedesk/pkg/retry"
)

const defaultRecipient = "manager@example.com"

// Registry binds intents to their handlers and declared required fields.
type Registry struct {
	leaves    contractx.LeaveStore
	sender    contractx.EmailSender
	recipient string
	retry     retryx.Policy
}

type Config struct {
	// Recipient is the inbox leave-request drafts are addressed to.
	Recipient string
}

var requiredFields = map[contractx.Intent][]string{
	contractx.IntentCheckBalance: {contractx.FieldEmployeeEmail},
	contractx.IntentDraftEmail: {
		contractx.FieldEmployeeEmail,
		contractx.FieldStartDate,
		contractx.FieldEndDate,
		contractx.FieldReason,
	},
}

func NewRegistry(leaves contractx.LeaveStore, sender contractx.EmailSender, cfg Config) (*Registry, error) {
	if leaves == nil {
		return nil, errors.New("tool: leave store is required")
	}
	if sender == nil {
		return nil, errors.New("tool: email sender is required")
	}

	recipient := strings.TrimSpace(cfg.Recipient)
	if recipient == "" {
		recipient = defaultRecipient
	}

	return &Registry{
		leaves:    leaves,
		sender:    sender,
		recipient: recipient,
		retry: retryx.Policy{
			Retryable: func(err error) bool {
				return errors.Is(err, contractx.ErrTransient)
			},
		},
	}, nil
}

// RequiredFields reports the fields an intent needs before its handler runs.
func (r *Registry) RequiredFields(intent contractx.Intent) []string {
	return requiredFields[intent]
}

// MissingFields reports which required fields are absent from the collected set.
func (r *Registry) MissingFields(intent contractx.Intent, fields map[string]string) []string {
	var missing []string
	for _, f := range requiredFields[intent] {
		if strings.TrimSpace(fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// CheckBalance is a pure read of the employee's remaining leave days.
// Transient store failures are retried before the error surfaces.
func (r *Registry) CheckBalance(ctx context.Context, employeeEmail string) (float64, error) {
	var balance float64
	err := retryx.Do(ctx, r.retry, func(ctx context.Context) error {
		var err error
		balance, err = r.leaves.LeaveBalance(ctx, employeeEmail)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ComposeDraft synthesizes a draft and records the matching pending leave
// request. Recording is best effort: a store failure must not cost the user
// their draft, so it is logged and the draft survives.
func (r *Registry) ComposeDraft(ctx context.Context, fields map[string]string, now time.Time) (contractx.Draft, error) {
	params := contractx.DraftParams{
		EmployeeEmail: fields[contractx.FieldEmployeeEmail],
		StartDate:     strings.TrimSpace(fields[contractx.FieldStartDate]),
		EndDate:       strings.TrimSpace(fields[contractx.FieldEndDate]),
		Reason:        fields[contractx.FieldReason],
	}

	draft, err := ComposeDraft(params, r.recipient, now)
	if err != nil {
		return contractx.Draft{}, err
	}

	start, end, err := ParseLeaveDates(params.StartDate, params.EndDate)
	if err != nil {
		return contractx.Draft{}, err
	}

	recordErr := retryx.Do(ctx, r.retry, func(ctx context.Context) error {
		_, err := r.leaves.CreatePendingRequest(ctx, params.EmployeeEmail, start, end, params.Reason)
		return err
	})
	if recordErr != nil {
		log.Warn().Err(recordErr).
			Str("employee_email", params.EmployeeEmail).
			Msg("failed to record pending leave request")
	}

	return draft, nil
}

// EditDraft revises the held draft with the user's instruction.
func (r *Registry) EditDraft(d contractx.Draft, instruction string) contractx.Draft {
	return EditDraft(d, instruction)
}

// SendDraft hands the draft to the email provider. Transient provider
// failures are retried; the caller keeps the draft on any failure.
func (r *Registry) SendDraft(ctx context.Context, d contractx.Draft) error {
	return retryx.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.sender.Send(ctx, d.Recipient, d.Subject, d.Body)
	})
}
