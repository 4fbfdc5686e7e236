package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPilot/internal/domain/models"
)

func TestFileRewardStore_MissingFileIsFreshStart(t *testing.T) {
	store := NewFileRewardStore(filepath.Join(t.TempDir(), "bandit.json"))
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestFileRewardStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "bandit.json")
	store := NewFileRewardStore(path)

	saved := &models.BanditState{
		Arms: map[string]*models.ArmStats{
			"pros":       {ID: "pros", Pulls: 12, Mean: 4.25, M2: 98.5},
			"model_meta": {ID: "model_meta", Pulls: 3, Mean: -1.5, M2: 7.2},
		},
		Open: []models.OpenReward{{
			EventID:    "evt-1",
			Arm:        "pros",
			BarIndex:   100,
			Direction:  1,
			Raw:        0.6,
			EntryClose: 65000,
			Notional:   5000,
			OpenedAt:   time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC),
		}},
		SavedAt: time.Date(2026, 8, 14, 12, 5, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(context.Background(), saved))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.Arms, loaded.Arms)
	require.Len(t, loaded.Open, 1)
	assert.Equal(t, saved.Open[0].EventID, loaded.Open[0].EventID)
	assert.True(t, saved.Open[0].OpenedAt.Equal(loaded.Open[0].OpenedAt))
}

func TestFileRewardStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bandit.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileRewardStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileRewardStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bandit.json")
	store := NewFileRewardStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.BanditState{
		Arms: map[string]*models.ArmStats{"pros": {ID: "pros", Pulls: 1}},
	}))
	require.NoError(t, store.Save(ctx, &models.BanditState{
		Arms: map[string]*models.ArmStats{"pros": {ID: "pros", Pulls: 2}},
	}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Arms["pros"].Pulls)

	// The atomic rename must not leave temp files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBudgetStore_RoundTrip(t *testing.T) {
	store := NewFileBudgetStore(filepath.Join(t.TempDir(), "budget.json"))
	ctx := context.Background()

	st, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	saved := &models.RiskBudget{
		DailyLossUSD:     120.5,
		DailyCapUSD:      500,
		CooldownUntilBar: 103,
		PositionQty:      0.1,
		PositionNotional: 6500,
		ResetAt:          time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, saved))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, saved.DailyLossUSD, loaded.DailyLossUSD, 1e-12)
	assert.Equal(t, saved.CooldownUntilBar, loaded.CooldownUntilBar)
	assert.True(t, saved.ResetAt.Equal(loaded.ResetAt))
}
