package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/pkg/database"
)

// PostgresStore persists forecasts with one transaction per run
// ⭐ SSOT: 예측 테이블 쓰기는 여기서만
type PostgresStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewPostgresStore creates a store over db
func NewPostgresStore(db *database.DB, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: log.With().Str("component", "storage.postgres").Logger(),
	}
}

// Persist upserts every hourly and daily prediction of a run atomically.
// Concurrent runs for the same site and type serialise on an advisory lock.
// total_actual_generation is never written.
func (s *PostgresStore) Persist(ctx context.Context, site contracts.Site, hourly []contracts.HourlyPrediction, daily []contracts.DailyPrediction) (contracts.PersistCounts, error) {
	var counts contracts.PersistCounts

	ts, err := tablesFor(site.Type)
	if err != nil {
		return counts, &contracts.PersistenceError{SiteID: site.ID, Message: "invalid site", Err: err}
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ts.advisoryKey(site.ID)); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		created, updated, err := upsertHourly(ctx, tx, ts.hourly, site.ID, hourly)
		if err != nil {
			return err
		}
		counts.HourlyCreated, counts.HourlyUpdated = created, updated

		created, updated, err = upsertDaily(ctx, tx, ts.daily, site.ID, daily)
		if err != nil {
			return err
		}
		counts.DailyCreated, counts.DailyUpdated = created, updated
		return nil
	})
	if err != nil {
		return contracts.PersistCounts{}, &contracts.PersistenceError{SiteID: site.ID, Message: "transaction rolled back", Err: err}
	}

	s.log.Debug().
		Int64("site_id", site.ID).
		Str("generation_type", string(site.Type)).
		Int("hourly_created", counts.HourlyCreated).
		Int("hourly_updated", counts.HourlyUpdated).
		Int("daily_created", counts.DailyCreated).
		Int("daily_updated", counts.DailyUpdated).
		Msg("forecast persisted")

	return counts, nil
}

func upsertHourly(ctx context.Context, tx pgx.Tx, table string, siteID int64, hourly []contracts.HourlyPrediction) (int, int, error) {
	if len(hourly) == 0 {
		return 0, 0, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
			(site_id, ts, forecast_date, feature_snapshot, predicted_generation)
		VALUES ($1, $2, $3::date, $4, $5)
		ON CONFLICT (site_id, ts) DO UPDATE SET
			forecast_date = EXCLUDED.forecast_date,
			feature_snapshot = EXCLUDED.feature_snapshot,
			predicted_generation = EXCLUDED.predicted_generation,
			updated_at = now()
		RETURNING (xmax = 0) AS inserted`, table)

	batch := &pgx.Batch{}
	for _, h := range hourly {
		batch.Queue(query, siteID, h.Timestamp, h.Timestamp.Format(contracts.DateLayout), h.FeatureSnapshot, h.PredictedGeneration)
	}

	return runUpsertBatch(ctx, tx, batch, table)
}

func upsertDaily(ctx context.Context, tx pgx.Tx, table string, siteID int64, daily []contracts.DailyPrediction) (int, int, error) {
	if len(daily) == 0 {
		return 0, 0, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
			(site_id, date, total_predicted_generation, recommendation_status, recommendation_message)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (site_id, date) DO UPDATE SET
			total_predicted_generation = EXCLUDED.total_predicted_generation,
			recommendation_status = EXCLUDED.recommendation_status,
			recommendation_message = EXCLUDED.recommendation_message,
			updated_at = now()
		RETURNING (xmax = 0) AS inserted`, table)

	batch := &pgx.Batch{}
	for _, d := range daily {
		batch.Queue(query, siteID, d.Date.Format(contracts.DateLayout), d.TotalPredictedGeneration, d.BelowThreshold, d.RecommendationMessage())
	}

	return runUpsertBatch(ctx, tx, batch, table)
}

// runUpsertBatch counts inserted and updated rows from RETURNING (xmax = 0)
func runUpsertBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, table string) (created, updated int, err error) {
	br := tx.SendBatch(ctx, batch)
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("upsert %s: %w", table, cerr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			return 0, 0, fmt.Errorf("upsert %s row %d: %w", table, i, err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

// HourlyForDate returns the stored hourly rows of one forecast date ordered by time
func (s *PostgresStore) HourlyForDate(ctx context.Context, site contracts.Site, date time.Time) ([]contracts.HourlyRecord, error) {
	ts, err := tablesFor(site.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT site_id, ts, feature_snapshot, predicted_generation, actual_generation, created_at, updated_at
		FROM %s
		WHERE site_id = $1 AND forecast_date = $2::date
		ORDER BY ts`, ts.hourly)

	rows, err := s.db.Pool.Query(ctx, query, site.ID, date.Format(contracts.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ts.hourly, err)
	}
	defer rows.Close()

	var records []contracts.HourlyRecord
	for rows.Next() {
		var r contracts.HourlyRecord
		var snapshot []byte
		if err := rows.Scan(&r.SiteID, &r.Timestamp, &snapshot, &r.PredictedGeneration,
			&r.ActualGeneration, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ts.hourly, err)
		}
		r.FeatureSnapshot = json.RawMessage(snapshot)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DailyRange returns stored daily rows with from <= date <= to, ascending
func (s *PostgresStore) DailyRange(ctx context.Context, site contracts.Site, from, to time.Time) ([]contracts.DailyRecord, error) {
	ts, err := tablesFor(site.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT site_id, date, total_predicted_generation, total_actual_generation,
			   recommendation_status, recommendation_message, created_at, updated_at
		FROM %s
		WHERE site_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date`, ts.daily)

	rows, err := s.db.Pool.Query(ctx, query, site.ID, from.Format(contracts.DateLayout), to.Format(contracts.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ts.daily, err)
	}
	defer rows.Close()

	var records []contracts.DailyRecord
	for rows.Next() {
		var r contracts.DailyRecord
		if err := rows.Scan(&r.SiteID, &r.Date, &r.TotalPredictedGeneration, &r.TotalActualGeneration,
			&r.RecommendationStatus, &r.RecommendationMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ts.daily, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// HasDailyOn reports whether a daily row exists for date
func (s *PostgresStore) HasDailyOn(ctx context.Context, site contracts.Site, date time.Time) (bool, error) {
	ts, err := tablesFor(site.Type)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE site_id = $1 AND date = $2::date)`, ts.daily)

	var exists bool
	if err := s.db.Pool.QueryRow(ctx, query, site.ID, date.Format(contracts.DateLayout)).Scan(&exists); err != nil {
		return false, fmt.Errorf("query %s: %w", ts.daily, err)
	}
	return exists, nil
}
