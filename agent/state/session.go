package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

// SessionState is the persistent source-of-truth for one user's conversation.
// The phase machine:
//   - idle: nothing pending.
//   - awaiting_clarification: an intent was recognized but required fields
//     are missing; PendingFields holds what we have, MissingFields the rest.
//   - draft_pending: LastDraft holds an unsent email awaiting edit or send.
type SessionState struct {
	UserID string `json:"user_id"`

	Phase         Phase             `json:"phase"`
	PendingIntent contractx.Intent  `json:"pending_intent,omitempty"`
	PendingFields map[string]string `json:"pending_fields,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`

	Turns     []contractx.Turn `json:"turns,omitempty"`
	LastDraft *contractx.Draft `json:"last_draft,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseAwaitingClarification Phase = "awaiting_clarification"
	PhaseDraftPending          Phase = "draft_pending"
)

// maxTurns bounds the retained history per session; the oldest turns fall off.
const maxTurns = 50

var (
	ErrInvalidUser       = errors.New("user id is empty")
	ErrInvalidTransition = errors.New("invalid phase transition")
)

func NewSessionState(userID string, now time.Time) *SessionState {
	return &SessionState{
		UserID:        userID,
		Phase:         PhaseIdle,
		PendingFields: make(map[string]string, 4),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureFieldsMap makes sure PendingFields is initialized after decoding.
func (s *SessionState) EnsureFieldsMap() {
	if s.PendingFields == nil {
		s.PendingFields = make(map[string]string, 4)
	}
}

// AppendTurn records one turn of the conversation, dropping the oldest turns
// beyond the retention cap.
func (s *SessionState) AppendTurn(role, text string, now time.Time) {
	s.Turns = append(s.Turns, contractx.Turn{
		Role: role,
		Text: text,
		At:   now.UTC(),
	})
	if len(s.Turns) > maxTurns {
		s.Turns = s.Turns[len(s.Turns)-maxTurns:]
	}
	s.Touch(now)
}

// SetLastDraft stores the draft and moves the session to draft_pending,
// clearing any clarification in flight.
func (s *SessionState) SetLastDraft(d *contractx.Draft, now time.Time) {
	s.LastDraft = d
	s.Phase = PhaseDraftPending
	s.clearPending()
	s.Touch(now)
}

// ClearDraft drops the draft after a successful send and settles the phase.
func (s *SessionState) ClearDraft(now time.Time) {
	s.LastDraft = nil
	if s.Phase == PhaseDraftPending {
		s.Phase = PhaseIdle
	}
	s.Touch(now)
}

// BeginClarification suspends an intent until the missing fields arrive.
func (s *SessionState) BeginClarification(intent contractx.Intent, known map[string]string, missing []string, now time.Time) error {
	if intent == "" {
		return fmt.Errorf("%w: clarification requires an intent", ErrInvalidTransition)
	}
	if len(missing) == 0 {
		return fmt.Errorf("%w: clarification requires missing fields", ErrInvalidTransition)
	}
	s.EnsureFieldsMap()
	for k, v := range known {
		if v != "" {
			s.PendingFields[k] = v
		}
	}
	s.PendingIntent = intent
	s.MissingFields = append([]string(nil), missing...)
	s.Phase = PhaseAwaitingClarification
	s.Touch(now)
	return nil
}

// MergeFields folds newly extracted fields into the pending set.
func (s *SessionState) MergeFields(fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	s.EnsureFieldsMap()
	for k, v := range fields {
		if v != "" {
			s.PendingFields[k] = v
		}
	}
}

// ResolveClarification ends the clarification and settles the phase based on
// whether a draft is still held.
func (s *SessionState) ResolveClarification(now time.Time) {
	s.clearPending()
	s.settlePhase()
	s.Touch(now)
}

func (s *SessionState) clearPending() {
	s.PendingIntent = ""
	s.PendingFields = make(map[string]string, 4)
	s.MissingFields = nil
}

func (s *SessionState) settlePhase() {
	if s.LastDraft != nil {
		s.Phase = PhaseDraftPending
	} else {
		s.Phase = PhaseIdle
	}
}

func (s *SessionState) Validate() error {
	if s.UserID == "" {
		return ErrInvalidUser
	}
	switch s.Phase {
	case PhaseIdle, "":
	case PhaseAwaitingClarification:
		if s.PendingIntent == "" || len(s.MissingFields) == 0 {
			return fmt.Errorf("%w: awaiting_clarification requires pending intent and missing fields", ErrInvalidTransition)
		}
	case PhaseDraftPending:
		if s.LastDraft == nil {
			return fmt.Errorf("%w: draft_pending requires a draft", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, s.Phase)
	}
	return nil
}
