package contract

import (
	"context"
	"time"
)

// Classifier maps a user message plus session context to an intent and
// extracted fields. Implementations may be rule-based or model-backed; the
// router does not care which.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error)
}

// LeaveStore is the database boundary the tool handlers depend on.
type LeaveStore interface {
	LeaveBalance(ctx context.Context, employeeEmail string) (float64, error)
	CreatePendingRequest(ctx context.Context, employeeEmail string, start, end time.Time, reason string) (int64, error)
}

// EmailSender is the outbound email provider boundary.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
