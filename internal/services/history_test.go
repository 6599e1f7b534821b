package services

import (
	"context"
	"testing"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/database"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Ping(db))
	return db
}

func generation(id, session, user, status string, created time.Time) *models.Generation {
	return &models.Generation{
		ID:              id,
		CreatedAt:       created,
		SessionID:       session,
		UserID:          user,
		ModelName:       "lstm",
		Strategy:        "greedy",
		Seed:            "60 _ _ _ ",
		RequestedLength: 500,
		Status:          status,
	}
}

func TestHistoryService_RecordAndList(t *testing.T) {
	svc := NewHistoryService(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Record(ctx, generation("a", "s1", "", models.GenerationStatusSucceeded, base)))
	require.NoError(t, svc.Record(ctx, generation("b", "s1", "", models.GenerationStatusFailed, base.Add(time.Minute))))
	require.NoError(t, svc.Record(ctx, generation("c", "s2", "u1", models.GenerationStatusSucceeded, base.Add(2*time.Minute))))

	list, err := svc.List(ctx, HistoryFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")
	assert.Equal(t, "a", list[1].ID)

	list, err = svc.List(ctx, HistoryFilter{SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)

	list, err = svc.List(ctx, HistoryFilter{SessionID: "s1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(ctx, HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistoryService_Get(t *testing.T) {
	svc := NewHistoryService(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, generation("a", "s1", "", models.GenerationStatusSucceeded, time.Now())))

	got, err := svc.Get(ctx, "a", HistoryFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "60 _ _ _ ", got.Seed)

	_, err = svc.Get(ctx, "a", HistoryFilter{SessionID: "other"})
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestHistoryService_DuplicateID(t *testing.T) {
	svc := NewHistoryService(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, generation("a", "s1", "", models.GenerationStatusSucceeded, time.Now())))
	assert.Error(t, svc.Record(ctx, generation("a", "s1", "", models.GenerationStatusSucceeded, time.Now())))
}

func TestHistoryService_Stats(t *testing.T) {
	svc := NewHistoryService(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, svc.Record(ctx, generation("a", "s1", "", models.GenerationStatusSucceeded, now)))
	require.NoError(t, svc.Record(ctx, generation("b", "s1", "", models.GenerationStatusSucceeded, now)))
	require.NoError(t, svc.Record(ctx, generation("c", "s1", "", models.GenerationStatusFailed, now)))

	stats, err := svc.Stats(ctx, HistoryFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, &Stats{Total: 3, Succeeded: 2, Failed: 1}, stats)
}
