package event

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clinic/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&shared.OutboxEntry{}))
	return db
}

// insertEntry stores a pending entry created at the given offset from now
func insertEntry(t *testing.T, repo *GormOutboxRepository, age time.Duration) *shared.OutboxEntry {
	t.Helper()
	entry := shared.NewOutboxEntry(newTestEvent("TestEvent"), []byte(`{"test":true}`))
	entry.CreatedAt = entry.CreatedAt.Add(-age)
	require.NoError(t, repo.Insert(context.Background(), entry))
	return entry
}

func TestGormOutboxRepository_InsertNothing(t *testing.T) {
	db, mock := setupMockDB(t)

	require.NoError(t, NewGormOutboxRepository(db).Insert(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_FindDue_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "outbox_entries" WHERE status = \$1 OR \(status = \$2 AND next_retry_at <= \$3\) ORDER BY created_at LIMIT \$4`).
		WithArgs(shared.OutboxStatusPending, shared.OutboxStatusFailed, now, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(uuid.New(), "PENDING"))

	due, err := NewGormOutboxRepository(db).FindDue(context.Background(), now, 25)

	require.NoError(t, err)
	assert.Len(t, due, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_Claim_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id, "PENDING"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "outbox_entries" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	won, err := NewGormOutboxRepository(db).Claim(context.Background(), []uuid.UUID{id})

	require.NoError(t, err)
	require.Len(t, won, 1)
	assert.Equal(t, shared.OutboxStatusProcessing, won[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_PurgeDelivered_SQL(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "outbox_entries" WHERE status = $1 AND processed_at < $2`)).
		WithArgs(shared.OutboxStatusSent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	purged, err := NewGormOutboxRepository(db).PurgeDelivered(context.Background(), time.Now().Add(-24*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_DeliveryRound(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	older := insertEntry(t, repo, 2*time.Minute)
	newer := insertEntry(t, repo, time.Minute)

	due, err := repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, older.ID, due[0].ID, "oldest entry goes first")

	won, err := repo.Claim(ctx, []uuid.UUID{older.ID, newer.ID})
	require.NoError(t, err)
	require.Len(t, won, 2)

	again, err := repo.Claim(ctx, []uuid.UUID{older.ID})
	require.NoError(t, err)
	assert.Empty(t, again, "a claimed entry cannot be claimed twice")

	byID := map[uuid.UUID]*shared.OutboxEntry{won[0].ID: won[0], won[1].ID: won[1]}
	byID[older.ID].Delivered(now)
	require.NoError(t, repo.Update(ctx, byID[older.ID]))
	byID[newer.ID].Failed(errors.New("bus down"), now, shared.RetryPolicy{BaseDelay: 30 * time.Second})
	require.NoError(t, repo.Update(ctx, byID[newer.ID]))

	due, err = repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry is not due yet")

	due, err = repo.FindDue(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, newer.ID, due[0].ID)
	assert.Equal(t, "bus down", due[0].LastError)

	purged, err := repo.PurgeDelivered(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestGormOutboxRepository_ClaimNothing(t *testing.T) {
	won, err := NewGormOutboxRepository(setupOutboxDB(t)).Claim(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, won)
}
