package crm

import "context"

// Metrics records business counters for the CRM services.
// The telemetry package provides the OpenTelemetry implementation.
type Metrics interface {
	RecordInteraction(ctx context.Context, platform string, created bool)
	RecordConversion(ctx context.Context, platform string)
	RecordCustomerStatusChange(ctx context.Context, from, to string)
	RecordActionCreated(ctx context.Context, actionType string)
	RecordActionTransition(ctx context.Context, from, to string)
	RecordOverdueSwept(ctx context.Context, count int)
	RecordReferralApplied(ctx context.Context)
	ConflictRetried(operation string)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) RecordInteraction(context.Context, string, bool) {}
func (NoopMetrics) RecordConversion(context.Context, string) {}
func (NoopMetrics) RecordCustomerStatusChange(context.Context, string, string) {}
func (NoopMetrics) RecordActionCreated(context.Context, string) {}
func (NoopMetrics) RecordActionTransition(context.Context, string, string) {}
func (NoopMetrics) RecordOverdueSwept(context.Context, int) {}
func (NoopMetrics) RecordReferralApplied(context.Context) {}
func (NoopMetrics) ConflictRetried(string) {}

var _ Metrics = NoopMetrics{}
