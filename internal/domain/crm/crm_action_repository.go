package crm

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CrmActionRepository defines persistence for CRM actions
type CrmActionRepository interface {
	// FindByID finds an action by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CrmAction, error)

	// Create inserts a new action
	Create(ctx context.Context, action *CrmAction) error

	// SaveWithLock updates an action guarded by its version
	SaveWithLock(ctx context.Context, action *CrmAction) error

	// FindOpenByCustomer lists pending, in_progress and overdue actions of a
	// customer, most urgent first, then by due date
	FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) ([]CrmAction, error)

	// FindOpenBySalesperson lists the open actions assigned to a salesperson
	FindOpenBySalesperson(ctx context.Context, salespersonID uuid.UUID) ([]CrmAction, error)

	// FindLatestByCustomer returns the most recently created action of a customer
	FindLatestByCustomer(ctx context.Context, customerID uuid.UUID) (*CrmAction, error)

	// FindOverdueCandidates lists pending or in_progress actions due before now
	FindOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]CrmAction, error)

	// MarkOverdue writes the overdue status only if the row is still pending or
	// in_progress. Returns false when another worker or a transition got there
	// first.
	MarkOverdue(ctx context.Context, action *CrmAction) (bool, error)
}
