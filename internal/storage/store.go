package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/pkg/config"
	"github.com/wonny/renewcast/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate
func Schema() string {
	return schemaSQL
}

// Backend bundles the site directory and the forecast store of one process
type Backend struct {
	Sites contracts.SiteDirectory
	Store contracts.ForecastStore

	db *database.DB
}

// Open builds the backend selected by cfg.Store
// ⭐ SSOT: 저장소 구현 선택은 여기서만
func Open(cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	if cfg.UsesMemoryStore() {
		sites := NewMemorySites(nil)
		if cfg.SitesFile != "" {
			loaded, err := LoadSitesFile(cfg.SitesFile)
			if err != nil {
				return nil, err
			}
			sites = NewMemorySites(loaded)
		}
		log.Warn().Int("sites", sites.Len()).Msg("using in-memory store, nothing is persisted across restarts")
		return &Backend{Sites: sites, Store: NewMemoryStore()}, nil
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Backend{
		Sites: NewPostgresSites(db.Pool),
		Store: NewPostgresStore(db, log),
		db:    db,
	}, nil
}

// DB returns the Postgres handle, nil for the memory backend
func (b *Backend) DB() *database.DB {
	return b.db
}

// Ping checks storage availability
func (b *Backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.Ping(ctx)
}

// Close releases the connection pool
func (b *Backend) Close() {
	if b.db != nil {
		b.db.Close()
	}
}

// Migrate applies the embedded schema
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type tableSet struct {
	hourly string
	daily  string
	lockID int64
}

var tables = map[contracts.GenerationType]tableSet{
	contracts.Solar: {"hourly_solar_predictions", "daily_solar_predictions", 1},
	contracts.Wind:  {"hourly_wind_predictions", "daily_wind_predictions", 2},
}

func tablesFor(t contracts.GenerationType) (tableSet, error) {
	ts, ok := tables[t]
	if !ok {
		return tableSet{}, fmt.Errorf("no tables for generation type %q", t)
	}
	return ts, nil
}

// advisoryKey packs the table family into the high byte of the site id
func (ts tableSet) advisoryKey(siteID int64) int64 {
	return ts.lockID<<56 | (siteID & (1<<56 - 1))
}
