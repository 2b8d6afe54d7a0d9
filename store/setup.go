package store

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

// Setup creates the schema if needed and seeds the sample employee, matching
// the environment the scenario tests assume.
func (r *Repository) Setup(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().
		Model((*Employee)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create employees table: %v", contractx.ErrTransient, err)
	}

	if _, err := r.db.NewCreateTable().
		Model((*LeaveRequest)(nil)).
		IfNotExists().
		ForeignKey(`("employee_id") REFERENCES "employees" ("id")`).
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create leave_requests table: %v", contractx.ErrTransient, err)
	}

	seed := &Employee{
		Name:         "John Doe",
		Email:        "john.doe@example.com",
		LeaveBalance: 15.5,
	}
	if _, err := r.db.NewInsert().
		Model(seed).
		On("CONFLICT (email) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: seed employee: %v", contractx.ErrTransient, err)
	}
	return nil
}
