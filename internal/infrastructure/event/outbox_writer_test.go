package event

import (
	"context"
	"errors"
	"testing"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countOutbox(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&shared.OutboxEntry{}).Count(&n).Error)
	return n
}

func TestOutboxWriter_AppendStoresPendingEntries(t *testing.T) {
	db := setupOutboxDB(t)
	writer := NewOutboxWriter(newTestCodec())
	first, second := newTestEvent("TestEvent"), newTestEvent("TestEvent")

	err := db.Transaction(func(tx *gorm.DB) error {
		return writer.Append(context.Background(), tx, first, second)
	})
	require.NoError(t, err)

	var stored shared.OutboxEntry
	require.NoError(t, db.Where("event_id = ?", first.EventID()).First(&stored).Error)
	assert.Equal(t, "TestEvent", stored.EventType)
	assert.Equal(t, first.AggregateID(), stored.AggregateID)
	assert.Equal(t, shared.OutboxStatusPending, stored.Status)
	assert.Equal(t, int64(2), countOutbox(t, db))
}

func TestOutboxWriter_RollbackDiscardsEntries(t *testing.T) {
	db := setupOutboxDB(t)
	writer := NewOutboxWriter(newTestCodec())

	stateChangeFailed := errors.New("version conflict")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := writer.Append(context.Background(), tx, newTestEvent("TestEvent")); err != nil {
			return err
		}
		return stateChangeFailed
	})

	assert.Equal(t, stateChangeFailed, err)
	assert.Equal(t, int64(0), countOutbox(t, db))
}

func TestOutboxWriter_UnregisteredEventFailsAppend(t *testing.T) {
	db := setupOutboxDB(t)
	writer := NewOutboxWriter(newTestCodec())

	err := db.Transaction(func(tx *gorm.DB) error {
		return writer.Append(context.Background(), tx, newTestEvent("TestEvent"), newTestEvent("NotRegistered"))
	})

	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Equal(t, int64(0), countOutbox(t, db))
}

func TestOutboxWriter_TransactionHandle(t *testing.T) {
	writer := NewOutboxWriter(newTestCodec())

	t.Run("wrong handle", func(t *testing.T) {
		err := writer.Append(context.Background(), "not a tx", newTestEvent("TestEvent"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "*gorm.DB")
	})

	t.Run("no events", func(t *testing.T) {
		assert.NoError(t, writer.Append(context.Background(), nil))
	})
}
