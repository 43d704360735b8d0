package event

import (
	"testing"
	"time"

	"github.com/clinic/backend/internal/domain/crm"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *EventCodec {
	codec := NewEventCodec()
	codec.Register("TestEvent", func() shared.DomainEvent { return &testEvent{} })
	return codec
}

func TestEventCodec_EncodeDecode(t *testing.T) {
	codec := newTestCodec()
	original := newTestEvent("TestEvent")

	payload, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"data":"test data"`)

	decoded, err := codec.Decode("TestEvent", payload)
	require.NoError(t, err)
	event, ok := decoded.(*testEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), event.EventID())
	assert.Equal(t, original.AggregateID(), event.AggregateID())
	assert.Equal(t, original.Data, event.Data)
}

func TestEventCodec_EncodeRefusesUnregisteredType(t *testing.T) {
	_, err := newTestCodec().Encode(newTestEvent("NotRegistered"))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestEventCodec_DecodeErrors(t *testing.T) {
	codec := newTestCodec()

	t.Run("unknown type", func(t *testing.T) {
		_, err := codec.Decode("NotRegistered", []byte(`{}`))
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := codec.Decode("TestEvent", []byte(`not json`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode TestEvent")
	})

	t.Run("envelope type mismatch", func(t *testing.T) {
		payload, err := codec.Encode(newTestEvent("TestEvent"))
		require.NoError(t, err)
		codec.Register("OtherEvent", func() shared.DomainEvent { return &testEvent{} })

		_, err = codec.Decode("OtherEvent", payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `payload carries event type "TestEvent"`)
	})
}

func TestEventCodec_EventTypesSorted(t *testing.T) {
	codec := NewEventCodec()
	codec.Register("b", func() shared.DomainEvent { return &testEvent{} })
	codec.Register("a", func() shared.DomainEvent { return &testEvent{} })

	assert.Equal(t, []string{"a", "b"}, codec.EventTypes())
}

// crmEventsFromAggregates drives the aggregates to raise one event of each
// family the automation handler and the outbox care about.
func crmEventsFromAggregates(t *testing.T) []shared.DomainEvent {
	t.Helper()

	record, err := crm.NewCustomerRecord(uuid.New())
	require.NoError(t, err)
	require.True(t, record.MarkLost())
	events := append([]shared.DomainEvent(nil), record.GetDomainEvents()...)

	salesperson := uuid.New()
	entry, err := crm.NewCommunicationEntry(record, crm.NewCommunicationParams{
		Type:          crm.CommunicationTypePhoneCall,
		Direction:     crm.CommunicationDirectionInbound,
		Status:        crm.CommunicationStatusMissed,
		SalespersonID: &salesperson,
		OccurredAt:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	events = append(events, entry.GetDomainEvents()...)

	node, err := crm.NewReferralNode(uuid.New())
	require.NoError(t, err)
	require.NoError(t, node.AssignCode("ABC234"))
	events = append(events, node.GetDomainEvents()...)

	return events
}

func TestCRMEventCodec_EnvelopeSurvivesRoundTrip(t *testing.T) {
	codec := NewCRMEventCodec()

	for _, original := range crmEventsFromAggregates(t) {
		t.Run(original.EventType(), func(t *testing.T) {
			payload, err := codec.Encode(original)
			require.NoError(t, err)

			decoded, err := codec.Decode(original.EventType(), payload)
			require.NoError(t, err)
			assert.Equal(t, original.EventID(), decoded.EventID())
			assert.Equal(t, original.AggregateID(), decoded.AggregateID())
			assert.Equal(t, original.AggregateType(), decoded.AggregateType())
			assert.True(t, original.OccurredAt().Equal(decoded.OccurredAt()))
		})
	}
}

func TestCRMEventCodec_CommunicationRecordedKeepsContactFields(t *testing.T) {
	codec := NewCRMEventCodec()
	events := crmEventsFromAggregates(t)

	var original *crm.CommunicationRecordedEvent
	for _, e := range events {
		if c, ok := e.(*crm.CommunicationRecordedEvent); ok {
			original = c
		}
	}
	require.NotNil(t, original)

	payload, err := codec.Encode(original)
	require.NoError(t, err)
	decoded, err := codec.Decode(crm.EventTypeCommunicationRecorded, payload)
	require.NoError(t, err)

	event := decoded.(*crm.CommunicationRecordedEvent)
	assert.Equal(t, crm.EventTypeCommunicationRecorded, event.EventType())
	assert.Equal(t, crm.CommunicationTypePhoneCall, event.Channel)
	assert.True(t, original.ContactAt.Equal(event.ContactAt))
	assert.True(t, event.IsMissedInboundCall())
}

func TestNewCRMEventCodec_RegistersEveryAggregateEvent(t *testing.T) {
	types := NewCRMEventCodec().EventTypes()

	assert.Len(t, types, 13)
	assert.Contains(t, types, crm.EventTypeCustomerStatusChanged)
	assert.Contains(t, types, crm.EventTypeCommunicationRecorded)
	assert.Contains(t, types, crm.EventTypeActionOverdue)
	assert.Contains(t, types, crm.EventTypeReferralApplied)
}
