package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

type Config struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Connect opens a bun DB over the Postgres wire driver.
func Connect(cfg Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Repository implements contract.LeaveStore plus the approval transaction.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &Repository{db: db}, nil
}

// LeaveBalance is a pure read of the employee's remaining leave days.
func (r *Repository) LeaveBalance(ctx context.Context, employeeEmail string) (float64, error) {
	employeeEmail = strings.TrimSpace(employeeEmail)
	if employeeEmail == "" {
		return 0, fmt.Errorf("%w: employee email is empty", contractx.ErrValidation)
	}

	var emp Employee
	err := r.db.NewSelect().
		Model(&emp).
		Column("leave_balance").
		Where("email = ?", employeeEmail).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: employee email=%s", contractx.ErrNotFound, employeeEmail)
		}
		return 0, fmt.Errorf("%w: select leave balance: %v", contractx.ErrTransient, err)
	}
	return emp.LeaveBalance, nil
}

// CreatePendingRequest records a new leave request in pending status and
// returns its id.
func (r *Repository) CreatePendingRequest(ctx context.Context, employeeEmail string, start, end time.Time, reason string) (int64, error) {
	employeeEmail = strings.TrimSpace(employeeEmail)
	if employeeEmail == "" {
		return 0, fmt.Errorf("%w: employee email is empty", contractx.ErrValidation)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: end date precedes start date", contractx.ErrValidation)
	}

	var emp Employee
	err := r.db.NewSelect().
		Model(&emp).
		Column("id").
		Where("email = ?", employeeEmail).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: employee email=%s", contractx.ErrNotFound, employeeEmail)
		}
		return 0, fmt.Errorf("%w: select employee: %v", contractx.ErrTransient, err)
	}

	req := &LeaveRequest{
		EmployeeID: emp.ID,
		StartDate:  start,
		EndDate:    end,
		Reason:     reason,
		Status:     StatusPending,
	}
	if _, err := r.db.NewInsert().Model(req).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: insert leave request: %v", contractx.ErrTransient, err)
	}
	return req.ID, nil
}

// UpdateLeaveStatus processes a pending leave request inside one transaction.
// The request row is locked with FOR UPDATE so concurrent approvals of the
// same request serialize; a non-pending request is never reprocessed, the
// prior outcome comes back with ErrAlreadyProcessed instead. Only approval
// deducts the inclusive day count from the employee's balance, and any
// failure aborts the whole transaction so there is no partial deduction.
func (r *Repository) UpdateLeaveStatus(ctx context.Context, requestID int64, newStatus string) (ApprovalOutcome, error) {
	newStatus = strings.TrimSpace(newStatus)
	if newStatus != StatusApproved && newStatus != StatusRejected {
		return ApprovalOutcome{}, fmt.Errorf("%w: status must be %q or %q, got %q", contractx.ErrValidation, StatusApproved, StatusRejected, newStatus)
	}

	var outcome ApprovalOutcome
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var req LeaveRequest
		err := tx.NewSelect().
			Model(&req).
			Where("lr.id = ?", requestID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: leave request id=%d", contractx.ErrNotFound, requestID)
			}
			return fmt.Errorf("%w: lock leave request: %v", contractx.ErrTransient, err)
		}

		var emp Employee
		err = tx.NewSelect().
			Model(&emp).
			Where("e.id = ?", req.EmployeeID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: employee id=%d", contractx.ErrNotFound, req.EmployeeID)
			}
			return fmt.Errorf("%w: lock employee: %v", contractx.ErrTransient, err)
		}

		if req.Status != StatusPending {
			outcome = ApprovalOutcome{
				RequestID:     req.ID,
				EmployeeEmail: emp.Email,
				Status:        req.Status,
			}
			return fmt.Errorf("%w: request id=%d status=%s", contractx.ErrAlreadyProcessed, req.ID, req.Status)
		}

		if _, err := tx.NewUpdate().
			Model((*LeaveRequest)(nil)).
			Set("status = ?", newStatus).
			Where("id = ?", req.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("%w: update leave request status: %v", contractx.ErrTransient, err)
		}

		var deducted float64
		if newStatus == StatusApproved {
			deducted = InclusiveDays(req.StartDate, req.EndDate)
			if emp.LeaveBalance-deducted < 0 {
				return fmt.Errorf("%w: balance %.1f is insufficient for %.1f days", contractx.ErrValidation, emp.LeaveBalance, deducted)
			}
			if _, err := tx.NewUpdate().
				Model((*Employee)(nil)).
				Set("leave_balance = leave_balance - ?", deducted).
				Where("id = ?", emp.ID).
				Exec(ctx); err != nil {
				return fmt.Errorf("%w: deduct leave balance: %v", contractx.ErrTransient, err)
			}
		}

		outcome = ApprovalOutcome{
			RequestID:     req.ID,
			EmployeeEmail: emp.Email,
			Status:        newStatus,
			DaysDeducted:  deducted,
		}
		return nil
	})
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

// InclusiveDays counts calendar days from start through end, both inclusive.
func InclusiveDays(start, end time.Time) float64 {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)
	return end.Sub(start).Hours()/24 + 1
}
