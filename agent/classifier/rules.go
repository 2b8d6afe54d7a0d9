// Package classifier turns free-text user messages into typed intents plus
// extracted fields. Rules is the deterministic default; LLM is a drop-in
// model-backed alternative behind the same interface.
package classifier

import (
	"context"
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	datePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	// "because <reason>" / "reason is <reason>" / "reason: <reason>"
	reasonPattern = regexp.MustCompile(`(?i)(?:because|reason(?:\s+is)?\s*:?)\s+(.+?)(?:[.!]\s*$|$)`)
)

var (
	balanceKeywords = []string{"balance", "days left", "days do i have", "remaining leave", "how much leave"}
	sendKeywords    = []string{"send it", "send the email", "send my", "go ahead and send", "please send", "send"}
	editKeywords    = []string{"edit", "revise", "rewrite", "make it", "change the", "shorter", "longer", "more casual", "more formal", "tone"}
	draftKeywords   = []string{"draft", "leave", "vacation", "time off", "day off", "absence", "request"}
)

// Rules is a keyword and pattern based Classifier. It is deliberately dumb:
// correctness of the conversation flow lives in the router, not here.
type Rules struct{}

func NewRules() *Rules {
	return &Rules{}
}

func (r *Rules) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResult, error) {
	text := strings.TrimSpace(req.Text)
	lower := strings.ToLower(text)

	intent := detectIntent(lower, req)
	fields := extractFields(text, intent, req)

	return contractx.ClassifyResult{
		Intent: intent,
		Fields: fields,
	}, nil
}

func detectIntent(lower string, req contractx.ClassifyRequest) contractx.Intent {
	switch {
	case containsAny(lower, balanceKeywords):
		return contractx.IntentCheckBalance
	case req.HasDraft && containsAny(lower, editKeywords):
		return contractx.IntentEditDraft
	case containsAny(lower, sendKeywords):
		return contractx.IntentSendEmail
	case containsAny(lower, draftKeywords):
		return contractx.IntentDraftEmail
	case req.PendingIntent != "":
		// No fresh intent recognized while fields are outstanding: treat the
		// message as the answer to the pending question.
		return contractx.IntentClarify
	default:
		return contractx.IntentUnknown
	}
}

func extractFields(text string, intent contractx.Intent, req contractx.ClassifyRequest) map[string]string {
	fields := make(map[string]string, 4)

	if intent == contractx.IntentEditDraft {
		fields[contractx.FieldInstruction] = text
		return fields
	}

	if email := emailPattern.FindString(text); email != "" {
		fields[contractx.FieldEmployeeEmail] = email
	}

	assignDates(fields, datePattern.FindAllString(text, -1), req.KnownFields)

	if m := reasonPattern.FindStringSubmatch(text); len(m) == 2 {
		fields[contractx.FieldReason] = strings.TrimSpace(m[1])
	} else if intent == contractx.IntentClarify && missingOnly(req.MissingFields, contractx.FieldReason) {
		// The pending question asked for the reason; the whole message is it.
		fields[contractx.FieldReason] = text
	}

	return fields
}

// assignDates maps found ISO dates onto start/end. With one date, it fills
// whichever of the two is still unknown, start first.
func assignDates(fields map[string]string, dates []string, known map[string]string) {
	switch {
	case len(dates) >= 2:
		fields[contractx.FieldStartDate] = dates[0]
		fields[contractx.FieldEndDate] = dates[1]
	case len(dates) == 1:
		if known[contractx.FieldStartDate] != "" && known[contractx.FieldEndDate] == "" {
			fields[contractx.FieldEndDate] = dates[0]
		} else {
			fields[contractx.FieldStartDate] = dates[0]
		}
	}
}

func missingOnly(missing []string, field string) bool {
	return len(missing) == 1 && missing[0] == field
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
