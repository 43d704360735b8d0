package telemetry

import (
	"context"

	"github.com/clinic/backend/internal/application/crm"
	"go.opentelemetry.io/otel/metric"
)

// CRMMetrics records engine activity as OpenTelemetry counters.
type CRMMetrics struct {
	interactions   *Counter
	conversions    *Counter
	statusChanges  *Counter
	actionsCreated *Counter
	transitions    *Counter
	overdueSwept   *Counter
	referrals      *Counter
	conflicts      *Counter
	handled        *Counter
	dispatched     *Counter
}

// NewCRMMetrics registers the CRM instruments on meter.
func NewCRMMetrics(meter metric.Meter) (*CRMMetrics, error) {
	m := &CRMMetrics{}
	counters := []struct {
		dst  **Counter
		name string
		desc string
	}{
		{&m.interactions, "crm.attribution.interactions", "Ad interactions recorded"},
		{&m.conversions, "crm.attribution.conversions", "Attributions marked converted"},
		{&m.statusChanges, "crm.customer.status_changes", "Customer lifecycle transitions"},
		{&m.actionsCreated, "crm.actions.created", "CRM actions created"},
		{&m.transitions, "crm.actions.transitions", "CRM action status transitions"},
		{&m.overdueSwept, "crm.actions.overdue_swept", "Actions flipped to overdue by the sweep"},
		{&m.referrals, "crm.referrals.applied", "Referral codes applied"},
		{&m.conflicts, "crm.conflicts.retried", "Operations retried after a concurrent write"},
		{&m.handled, "crm.events.handled", "Event deliveries seen by idempotent handlers"},
		{&m.dispatched, "crm.events.dispatched", "Event bus dispatches by outcome"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, "{count}")
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *CRMMetrics) RecordInteraction(ctx context.Context, platform string, created bool) {
	m.interactions.Inc(ctx, AttrPlatform.String(platform), AttrCreated.Bool(created))
}

func (m *CRMMetrics) RecordConversion(ctx context.Context, platform string) {
	m.conversions.Inc(ctx, AttrPlatform.String(platform))
}

func (m *CRMMetrics) RecordCustomerStatusChange(ctx context.Context, from, to string) {
	m.statusChanges.Inc(ctx, AttrStatusFrom.String(from), AttrStatusTo.String(to))
}

func (m *CRMMetrics) RecordActionCreated(ctx context.Context, actionType string) {
	m.actionsCreated.Inc(ctx, AttrActionType.String(actionType))
}

func (m *CRMMetrics) RecordActionTransition(ctx context.Context, from, to string) {
	m.transitions.Inc(ctx, AttrStatusFrom.String(from), AttrStatusTo.String(to))
}

// RecordOverdueSwept adds count; empty sweeps are not recorded.
func (m *CRMMetrics) RecordOverdueSwept(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.overdueSwept.Add(ctx, int64(count))
}

func (m *CRMMetrics) RecordReferralApplied(ctx context.Context) {
	m.referrals.Inc(ctx)
}

// ConflictRetried has no caller context; it is recorded against Background.
func (m *CRMMetrics) ConflictRetried(operation string) {
	m.conflicts.Inc(context.Background(), AttrOperation.String(operation))
}

// RecordHandlerOutcome counts one delivery to an idempotent event handler.
func (m *CRMMetrics) RecordHandlerOutcome(ctx context.Context, handler, eventType, outcome string) {
	m.handled.Inc(ctx, AttrHandler.String(handler), AttrEventType.String(eventType), AttrOutcome.String(outcome))
}

// RecordDispatch counts one event bus dispatch.
func (m *CRMMetrics) RecordDispatch(ctx context.Context, eventType, outcome string) {
	m.dispatched.Inc(ctx, AttrEventType.String(eventType), AttrOutcome.String(outcome))
}

var _ crm.Metrics = (*CRMMetrics)(nil)
