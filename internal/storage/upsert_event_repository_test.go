package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-reconciler/internal/config"
	"github.com/project-reconciler/internal/models"
)

func TestUpsertEventRepository_RecordAndHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := OpenEventLog(testContext(t), &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "projects_test",
		User:     "default",
		Password: "",
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := testContext(t)
	require.NoError(t, RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse"))

	repo := NewUpsertEventRepository(db)
	uid := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Record(ctx,
		&models.UpsertEvent{EventID: uuid.NewString(), ProjectUID: uid, ProjectName: "Alpha", ProjectTicker: "ALP",
			Source: "coingecko", Action: models.UpsertInserted, PreferIncoming: true, Version: 1, Timestamp: now},
		&models.UpsertEvent{EventID: uuid.NewString(), ProjectUID: uid, ProjectName: "Alpha", ProjectTicker: "ALP",
			Source: "dextools", Action: models.UpsertUpdated, Version: 2, Warnings: 1, Timestamp: now.Add(time.Second)},
	))

	events, err := repo.History(ctx, uid, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "dextools", events[0].Source)
	assert.Equal(t, models.UpsertUpdated, events[0].Action)
	assert.False(t, events[0].PreferIncoming)
	assert.Equal(t, uint32(1), events[0].Warnings)
}

func TestUpsertEventRepository_RecordNothing(t *testing.T) {
	repo := NewUpsertEventRepository(nil)
	assert.NoError(t, repo.Record(testContext(t)))
}
