package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteChurnRepository_Ledger(t *testing.T) {
	db := setupRebalanceTestDB(t)
	repo := NewSQLiteChurnRepository(db)
	ctx := context.Background()
	ownerID := uuid.New()

	t.Run("a missing row reads as a zero entry", func(t *testing.T) {
		entry, err := repo.GetLedger(ctx, ownerID, "2026-03-02")
		require.NoError(t, err)
		assert.Equal(t, ownerID, entry.OwnerID)
		assert.Equal(t, "2026-03-02", entry.Day)
		assert.Zero(t, entry.MinutesMoved)
		assert.Zero(t, entry.MovesCount)
	})

	t.Run("increments accumulate per day", func(t *testing.T) {
		require.NoError(t, repo.IncrementLedger(ctx, ownerID, "2026-03-02", 60, 2, 120))
		require.NoError(t, repo.IncrementLedger(ctx, ownerID, "2026-03-02", 30, 1, 120))

		entry, err := repo.GetLedger(ctx, ownerID, "2026-03-02")
		require.NoError(t, err)
		assert.Equal(t, 90, entry.MinutesMoved)
		assert.Equal(t, 3, entry.MovesCount)
		assert.Equal(t, 120, entry.CapSnapshot)
		assert.Equal(t, 30, entry.Remaining())
	})

	t.Run("days are tracked independently", func(t *testing.T) {
		require.NoError(t, repo.IncrementLedger(ctx, ownerID, "2026-03-03", 15, 1, 120))

		entry, err := repo.GetLedger(ctx, ownerID, "2026-03-03")
		require.NoError(t, err)
		assert.Equal(t, 15, entry.MinutesMoved)
	})
}

func TestSQLiteChurnRepository_Settings(t *testing.T) {
	db := setupRebalanceTestDB(t)
	repo := NewSQLiteChurnRepository(db)
	ctx := context.Background()

	t.Run("no override reads as nil", func(t *testing.T) {
		settings, err := repo.GetSettings(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, settings)
	})

	t.Run("an override is returned", func(t *testing.T) {
		ownerID := uuid.New()
		_, err := db.Exec(`INSERT INTO churn_settings (owner_id, daily_cap_minutes) VALUES (?, ?)`, ownerID.String(), 45)
		require.NoError(t, err)

		settings, err := repo.GetSettings(ctx, ownerID)
		require.NoError(t, err)
		require.NotNil(t, settings)
		assert.Equal(t, 45, settings.DailyCapMinutes)
	})
}
