package contract

import "time"

// Intent is the classified purpose of one user message. It drives routing
// and is never persisted beyond the turn.
type Intent string

const (
	IntentCheckBalance Intent = "check_balance"
	IntentDraftEmail   Intent = "draft_email"
	IntentSendEmail    Intent = "send_email"
	IntentEditDraft    Intent = "edit_draft"
	IntentClarify      Intent = "clarify"
	IntentUnknown      Intent = "unknown"
)

// Field keys extracted by classifiers and collected across clarification turns.
const (
	FieldEmployeeEmail = "employee_email"
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	FieldReason        = "reason"
	FieldInstruction   = "instruction"
)

type Turn struct {
	Role string    `json:"role"` // "user" | "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DraftParams are the source parameters a draft was synthesized from. Edits
// re-render from these, so the draft stays a pure function of its inputs.
type DraftParams struct {
	EmployeeEmail string   `json:"employee_email"`
	StartDate     string   `json:"start_date"` // ISO calendar date
	EndDate       string   `json:"end_date"`   // ISO calendar date
	Reason        string   `json:"reason"`
	Tone          string   `json:"tone,omitempty"`
	Notes         []string `json:"notes,omitempty"`
}

// Draft is an unsent leave-request email held on the session until it is
// sent or replaced.
type Draft struct {
	ID        string      `json:"id"`
	Recipient string      `json:"recipient"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	Params    DraftParams `json:"params"`
	CreatedAt time.Time   `json:"created_at"`
}

// ClassifyRequest gives a classifier the message plus the session context it
// needs for tie-breaking and clarification continuations.
type ClassifyRequest struct {
	Text          string            `json:"text"`
	PendingIntent Intent            `json:"pending_intent,omitempty"`
	KnownFields   map[string]string `json:"known_fields,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	HasDraft      bool              `json:"has_draft"`
	History       []Turn            `json:"history,omitempty"`
}

type ClassifyResult struct {
	Intent Intent            `json:"intent"`
	Fields map[string]string `json:"fields,omitempty"`
}
