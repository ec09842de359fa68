package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/wonny/renewcast/internal/contracts"
)

// PostgresSites reads the sites table
type PostgresSites struct {
	pool *pgxpool.Pool
}

// NewPostgresSites creates a site directory over pool
func NewPostgresSites(pool *pgxpool.Pool) *PostgresSites {
	return &PostgresSites{pool: pool}
}

// Get returns one site or contracts.ErrSiteNotFound
func (s *PostgresSites) Get(ctx context.Context, id int64) (*contracts.Site, error) {
	query := `
		SELECT id, name, location, generation_type, threshold_value, timezone
		FROM sites
		WHERE id = $1`

	var site contracts.Site
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&site.ID, &site.Name, &site.Location, &site.Type, &site.ThresholdValue, &site.Timezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", id, contracts.ErrSiteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get site %d: %w", id, err)
	}
	return &site, nil
}

// ListByType returns every site of t ordered by id
func (s *PostgresSites) ListByType(ctx context.Context, t contracts.GenerationType) ([]contracts.Site, error) {
	query := `
		SELECT id, name, location, generation_type, threshold_value, timezone
		FROM sites
		WHERE generation_type = $1
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, string(t))
	if err != nil {
		return nil, fmt.Errorf("list %s sites: %w", t, err)
	}
	defer rows.Close()

	var sites []contracts.Site
	for rows.Next() {
		var site contracts.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.Location, &site.Type, &site.ThresholdValue, &site.Timezone); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Create inserts a site and returns it with its id (seeding and tests)
func (s *PostgresSites) Create(ctx context.Context, site contracts.Site) (*contracts.Site, error) {
	query := `
		INSERT INTO sites (name, location, generation_type, threshold_value, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if err := s.pool.QueryRow(ctx, query, site.Name, site.Location, string(site.Type), site.ThresholdValue, site.Timezone).Scan(&site.ID); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	return &site, nil
}

// MemorySites is a fixed in-process site directory
type MemorySites struct {
	mu    sync.RWMutex
	sites map[int64]contracts.Site
}

// NewMemorySites creates a directory holding sites
func NewMemorySites(sites []contracts.Site) *MemorySites {
	m := &MemorySites{sites: make(map[int64]contracts.Site, len(sites))}
	for _, s := range sites {
		m.sites[s.ID] = s
	}
	return m
}

// Put adds or replaces a site
func (m *MemorySites) Put(site contracts.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.ID] = site
}

// Delete removes a site. Stored forecasts are left to the store.
func (m *MemorySites) Delete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sites, id)
}

// Len returns the number of sites
func (m *MemorySites) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sites)
}

func (m *MemorySites) Get(ctx context.Context, id int64) (*contracts.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %d: %w", id, contracts.ErrSiteNotFound)
	}
	return &s, nil
}

func (m *MemorySites) ListByType(ctx context.Context, t contracts.GenerationType) ([]contracts.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []contracts.Site
	for _, s := range m.sites {
		if s.Type == t {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type sitesFile struct {
	Sites []siteEntry `yaml:"sites"`
}

type siteEntry struct {
	ID             int64   `yaml:"id"`
	Name           string  `yaml:"name"`
	Location       string  `yaml:"location"`
	Type           string  `yaml:"generation_type"`
	ThresholdValue float64 `yaml:"threshold_value"`
	Timezone       string  `yaml:"timezone"`
}

// LoadSitesFile reads a YAML site list for the memory backend
func LoadSitesFile(path string) ([]contracts.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	var f sitesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode sites file %s: %w", path, err)
	}

	seen := make(map[int64]bool, len(f.Sites))
	sites := make([]contracts.Site, 0, len(f.Sites))
	for i, e := range f.Sites {
		t, err := contracts.ParseGenerationType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("sites[%d]: %w", i, err)
		}
		if e.ID <= 0 || seen[e.ID] {
			return nil, fmt.Errorf("sites[%d]: id must be positive and unique", i)
		}
		seen[e.ID] = true
		site := contracts.Site{
			ID:             e.ID,
			Name:           e.Name,
			Location:       e.Location,
			Type:           t,
			ThresholdValue: e.ThresholdValue,
			Timezone:       e.Timezone,
		}
		if _, ok := site.Zone(); e.Timezone != "" && !ok {
			return nil, fmt.Errorf("sites[%d]: unknown timezone %q", i, e.Timezone)
		}
		sites = append(sites, site)
	}
	return sites, nil
}
