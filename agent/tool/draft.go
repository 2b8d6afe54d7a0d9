package tool

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

// Draft tones. Formal is the default; edits can switch tone because the body
// is always re-rendered from the stored parameters.
const (
	ToneFormal = "formal"
	ToneCasual = "casual"
	ToneBrief  = "brief"
)

const isoDateLayout = "2006-01-02"

// ComposeDraft synthesizes a leave-request email from explicit parameters.
// Pure text synthesis: same inputs, same subject and body. Dates must be ISO
// calendar dates and the end date must not precede the start date.
func ComposeDraft(params contractx.DraftParams, recipient string, now time.Time) (contractx.Draft, error) {
	params.EmployeeEmail = strings.TrimSpace(params.EmployeeEmail)
	params.Reason = strings.TrimSpace(params.Reason)

	if params.EmployeeEmail == "" {
		return contractx.Draft{}, fmt.Errorf("%w: employee email is required", contractx.ErrValidation)
	}
	if params.Reason == "" {
		return contractx.Draft{}, fmt.Errorf("%w: leave reason is required", contractx.ErrValidation)
	}
	if _, _, err := ParseLeaveDates(params.StartDate, params.EndDate); err != nil {
		return contractx.Draft{}, err
	}

	if params.Tone == "" {
		params.Tone = ToneFormal
	}

	return contractx.Draft{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Subject:   "Leave Request from " + params.EmployeeEmail,
		Body:      renderBody(params),
		Params:    params,
		CreatedAt: now.UTC(),
	}, nil
}

// EditDraft produces a revised draft from the last draft plus an edit
// instruction. Recognized tone instructions re-render the body; anything
// else is carried as an explicit note so the change is always visible.
func EditDraft(d contractx.Draft, instruction string) contractx.Draft {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return d
	}

	params := d.Params
	if tone, ok := toneFromInstruction(instruction); ok {
		params.Tone = tone
	} else {
		params.Notes = append(append([]string(nil), params.Notes...), instruction)
	}

	d.Params = params
	d.Body = renderBody(params)
	return d
}

// ParseLeaveDates validates the ISO date pair and the ordering invariant.
func ParseLeaveDates(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(isoDateLayout, strings.TrimSpace(startDate))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q is not a valid YYYY-MM-DD date", contractx.ErrValidation, startDate)
	}
	end, err := time.Parse(isoDateLayout, strings.TrimSpace(endDate))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %q is not a valid YYYY-MM-DD date", contractx.ErrValidation, endDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %s precedes start date %s", contractx.ErrValidation, endDate, startDate)
	}
	return start, end, nil
}

func toneFromInstruction(instruction string) (string, bool) {
	lower := strings.ToLower(instruction)
	switch {
	case strings.Contains(lower, "casual") || strings.Contains(lower, "friendly") || strings.Contains(lower, "relaxed"):
		return ToneCasual, true
	case strings.Contains(lower, "formal") || strings.Contains(lower, "professional"):
		return ToneFormal, true
	case strings.Contains(lower, "shorter") || strings.Contains(lower, "brief") || strings.Contains(lower, "concise"):
		return ToneBrief, true
	default:
		return "", false
	}
}

func renderBody(p contractx.DraftParams) string {
	var b strings.Builder

	switch p.Tone {
	case ToneCasual:
		b.WriteString("Hi,\n\n")
		fmt.Fprintf(&b, "I'd like to take leave from %s to %s.\n\n", p.StartDate, p.EndDate)
		fmt.Fprintf(&b, "The reason: %s.\n\n", p.Reason)
		b.WriteString("I'll make sure everything is wrapped up before I'm off. Let me know if that works!\n\n")
		fmt.Fprintf(&b, "Thanks,\n%s\n", p.EmployeeEmail)
	case ToneBrief:
		fmt.Fprintf(&b, "Requesting leave from %s to %s. Reason: %s.\n\n", p.StartDate, p.EndDate, p.Reason)
		fmt.Fprintf(&b, "Regards,\n%s\n", p.EmployeeEmail)
	default:
		b.WriteString("Dear Manager,\n\n")
		fmt.Fprintf(&b, "I am writing to formally request a leave of absence from %s to %s.\n\n", p.StartDate, p.EndDate)
		fmt.Fprintf(&b, "The reason for my leave is: %s.\n\n", p.Reason)
		b.WriteString("I will ensure all my pending tasks are completed before my departure. Please let me know if you require any further information.\n\n")
		b.WriteString("Thank you for your consideration.\n\n")
		fmt.Fprintf(&b, "Best regards,\n%s\n", p.EmployeeEmail)
	}

	if len(p.Notes) > 0 {
		b.WriteString("\n")
		for _, note := range p.Notes {
			fmt.Fprintf(&b, "P.S. %s\n", note)
		}
	}

	return b.String()
}
