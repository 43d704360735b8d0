package crm

import (
	"context"
	"fmt"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Titles of the actions created by automation
const (
	FollowUpActionTitle = "Follow up after first treatment"
	CallbackActionTitle = "Call back missed call"
	LostCancelReason    = "customer marked lost"
)

// AutomationHandler reacts to lifecycle and communication events by opening
// or closing CRM actions
type AutomationHandler struct {
	actions   *ActionService
	lifecycle *CustomerLifecycleService
	logger    *zap.Logger
	opts      options
}

// NewAutomationHandler creates a new AutomationHandler
func NewAutomationHandler(
	actions *ActionService,
	lifecycle *CustomerLifecycleService,
	logger *zap.Logger,
	opts ...Option,
) *AutomationHandler {
	return &AutomationHandler{
		actions:   actions,
		lifecycle: lifecycle,
		logger:    logger,
		opts:      buildOptions(opts),
	}
}

// EventTypes returns the event types this handler is interested in
func (h *AutomationHandler) EventTypes() []string {
	return []string{
		crm.EventTypeCustomerStatusChanged,
		crm.EventTypeCommunicationRecorded,
	}
}

// Handle dispatches on the concrete event type
func (h *AutomationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *crm.CustomerStatusChangedEvent:
		return h.onStatusChanged(ctx, e)
	case *crm.CommunicationRecordedEvent:
		return h.onCommunicationRecorded(ctx, e)
	default:
		h.logger.Error("unexpected event type",
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
}

func (h *AutomationHandler) onStatusChanged(ctx context.Context, e *crm.CustomerStatusChangedEvent) error {
	switch e.NewStatus {
	case crm.CustomerStatusLost:
		_, err := h.actions.CancelOpenForCustomer(ctx, e.CustomerID, LostCancelReason)
		return err

	case crm.CustomerStatusConverted:
		latest, err := h.actions.LatestForCustomer(ctx, e.CustomerID)
		if err != nil {
			return err
		}
		if latest == nil {
			h.logger.Info("no salesperson known for converted customer, skipping follow-up",
				zap.String("customer_id", e.CustomerID.String()),
			)
			return nil
		}

		due := h.opts.clock().Add(h.opts.settings.FollowUpDelay)
		_, err = h.actions.CreateAction(ctx, CreateActionRequest{
			CustomerID:    e.CustomerID,
			SalespersonID: latest.SalespersonID,
			ActionType:    string(crm.ActionTypeFollowUp),
			Title:         FollowUpActionTitle,
			Priority:      string(crm.ActionPriorityMedium),
			DueDate:       &due,
		})
		return err
	}
	return nil
}

func (h *AutomationHandler) onCommunicationRecorded(ctx context.Context, e *crm.CommunicationRecordedEvent) error {
	if e.IsMissedInboundCall() && e.SalespersonID != nil {
		due := h.opts.clock().Add(h.opts.settings.CallbackDelay)
		if _, err := h.actions.CreateAction(ctx, CreateActionRequest{
			CustomerID:    e.CustomerID,
			SalespersonID: *e.SalespersonID,
			ActionType:    string(crm.ActionTypePhoneCall),
			Title:         CallbackActionTitle,
			Priority:      string(crm.ActionPriorityHigh),
			DueDate:       &due,
		}); err != nil {
			return err
		}
	}

	if e.IsCustomerActivity() {
		if _, err := h.lifecycle.RegisterActivity(ctx, e.CustomerID, e.ContactAt); err != nil {
			return err
		}
	}
	return nil
}

var _ shared.EventHandler = (*AutomationHandler)(nil)
