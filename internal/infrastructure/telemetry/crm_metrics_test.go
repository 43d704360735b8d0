package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string][]metricdata.DataPoint[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum.DataPoints
			}
		}
	}
	return out
}

func total(points []metricdata.DataPoint[int64]) int64 {
	var n int64
	for _, p := range points {
		n += p.Value
	}
	return n
}

func TestCRMMetrics_Noop(t *testing.T) {
	m, err := NewCRMMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordInteraction(ctx, "facebook", true)
	m.RecordConversion(ctx, "facebook")
	m.RecordCustomerStatusChange(ctx, "new", "engaged")
	m.RecordActionCreated(ctx, "follow_up")
	m.RecordActionTransition(ctx, "pending", "completed")
	m.RecordOverdueSwept(ctx, 2)
	m.RecordReferralApplied(ctx)
	m.ConflictRetried("record_interaction")
	m.RecordHandlerOutcome(ctx, "crm_automation", "CustomerStatusChanged", "processed")
	m.RecordDispatch(ctx, "CustomerStatusChanged", "delivered")
}

func TestCRMMetrics_Recorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewCRMMetrics(provider.Meter("crm"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordInteraction(ctx, "facebook", true)
	m.RecordInteraction(ctx, "facebook", false)
	m.RecordInteraction(ctx, "tiktok", true)
	m.RecordOverdueSwept(ctx, 4)
	m.RecordOverdueSwept(ctx, 0)
	m.ConflictRetried("assign_primary")
	m.RecordHandlerOutcome(ctx, "crm_automation", "CustomerStatusChanged", "processed")
	m.RecordHandlerOutcome(ctx, "crm_automation", "CustomerStatusChanged", "duplicate")
	m.RecordDispatch(ctx, "CommunicationRecorded", "delivered")
	m.RecordDispatch(ctx, "ReferralApplied", "unrouted")
	m.RecordDispatch(ctx, "ReferralApplied", "unrouted")

	sums := collectSums(t, reader)

	interactions := sums["crm.attribution.interactions"]
	assert.Len(t, interactions, 3)
	assert.Equal(t, int64(3), total(interactions))
	for _, p := range interactions {
		if v, ok := p.Attributes.Value(AttrPlatform); ok && v.AsString() == "tiktok" {
			assert.Equal(t, int64(1), p.Value)
		}
	}

	assert.Equal(t, int64(4), total(sums["crm.actions.overdue_swept"]))

	conflicts := sums["crm.conflicts.retried"]
	require.Len(t, conflicts, 1)
	v, ok := conflicts[0].Attributes.Value(attribute.Key("crm.operation"))
	require.True(t, ok)
	assert.Equal(t, "assign_primary", v.AsString())

	handled := sums["crm.events.handled"]
	assert.Len(t, handled, 2)
	assert.Equal(t, int64(2), total(handled))

	dispatched := sums["crm.events.dispatched"]
	assert.Len(t, dispatched, 2)
	assert.Equal(t, int64(3), total(dispatched))
	for _, p := range dispatched {
		if v, ok := p.Attributes.Value(AttrOutcome); ok && v.AsString() == "unrouted" {
			assert.Equal(t, int64(2), p.Value)
		}
	}
}
