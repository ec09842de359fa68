package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/pkg/config"
	"github.com/wonny/renewcast/pkg/database"
)

// openTestDB connects to TEST_DATABASE_URL and applies the schema
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := database.New(&config.Config{
		Database: config.DatabaseConfig{
			URL:             url,
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestPostgresStorePersistRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sites := NewPostgresSites(db.Pool)
	site, err := sites.Create(ctx, contracts.Site{
		Name:           "integration solar",
		Location:       "23.276474, 77.460590",
		Type:           contracts.Solar,
		ThresholdValue: 1500,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM sites WHERE id = $1`, site.ID)
	})

	got, err := sites.Get(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.Solar, got.Type)

	store := NewPostgresStore(db, zerolog.Nop())
	loc := time.FixedZone("IST", 19800)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)

	hourly := make([]contracts.HourlyPrediction, 24)
	for h := range hourly {
		hourly[h] = contracts.HourlyPrediction{
			SiteID:              site.ID,
			Timestamp:           day.Add(time.Duration(h) * time.Hour),
			FeatureSnapshot:     json.RawMessage(`{"Hour":1}`),
			PredictedGeneration: 85.75,
		}
	}
	daily := []contracts.DailyPrediction{{Date: day, TotalPredictedGeneration: 1200.45, BelowThreshold: true}}

	counts, err := store.Persist(ctx, *site, hourly, daily)
	require.NoError(t, err)
	assert.Equal(t, 24, counts.HourlyCreated)
	assert.Equal(t, 1, counts.DailyCreated)

	counts, err = store.Persist(ctx, *site, hourly, daily)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Created())
	assert.Equal(t, 25, counts.Updated())

	rows, err := store.HourlyForDate(ctx, *site, day)
	require.NoError(t, err)
	assert.Len(t, rows, 24)

	records, err := store.DailyRange(ctx, *site, day, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1200.45, records[0].TotalPredictedGeneration)
	require.NotNil(t, records[0].RecommendationMessage)
	assert.Equal(t, contracts.BelowThresholdMessage, *records[0].RecommendationMessage)

	exists, err := store.HasDailyOn(ctx, *site, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostgresSitesNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := NewPostgresSites(db.Pool).Get(context.Background(), -1)
	assert.ErrorIs(t, err, contracts.ErrSiteNotFound)
}
