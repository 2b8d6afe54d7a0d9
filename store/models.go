// Package store is the Postgres persistence layer for employees and leave
// requests. It owns the one genuine concurrency-correctness mechanism in the
// system: the row-locked approval transaction.
package store

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Employee struct {
	bun.BaseModel `bun:"table:employees,alias:e"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
	// Email is the unique business key the chat surface looks employees up by.
	Email string `bun:"email,notnull,unique"`
	// LeaveBalance is in days and must never go negative.
	LeaveBalance float64 `bun:"leave_balance,notnull"`
}

type LeaveRequest struct {
	bun.BaseModel `bun:"table:leave_requests,alias:lr"`

	ID         int64     `bun:"id,pk,autoincrement"`
	EmployeeID int64     `bun:"employee_id,notnull"`
	StartDate  time.Time `bun:"start_date,notnull"`
	EndDate    time.Time `bun:"end_date,notnull"`
	Reason     string    `bun:"reason"`
	Status     string    `bun:"status,notnull"`
}

// ApprovalOutcome reports what an approval transaction did (or, for an
// already-processed request, what had been done before).
type ApprovalOutcome struct {
	RequestID     int64   `json:"request_id"`
	EmployeeEmail string  `json:"employee_email"`
	Status        string  `json:"status"`
	DaysDeducted  float64 `json:"days_deducted,omitempty"`
}
