package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/renewcast/internal/contracts"
)

type hourlyKey struct {
	siteID int64
	ts     int64 // unix seconds
}

type dailyKey struct {
	siteID int64
	date   string
}

type memoryTables struct {
	hourly map[hourlyKey]contracts.HourlyRecord
	daily  map[dailyKey]contracts.DailyRecord
}

func (m memoryTables) clone() memoryTables {
	out := memoryTables{
		hourly: make(map[hourlyKey]contracts.HourlyRecord, len(m.hourly)),
		daily:  make(map[dailyKey]contracts.DailyRecord, len(m.daily)),
	}
	for k, v := range m.hourly {
		out.hourly[k] = v
	}
	for k, v := range m.daily {
		out.daily[k] = v
	}
	return out
}

// MemoryStore keeps forecasts in process memory with the same upsert
// semantics as PostgresStore. A persist call applies to a copy that
// replaces the live tables only when every write succeeded.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[contracts.GenerationType]memoryTables
	now    func() time.Time

	failAfter int
	failErr   error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		tables:    make(map[contracts.GenerationType]memoryTables),
		now:       time.Now,
		failAfter: -1,
	}
	for t := range tables {
		s.tables[t] = memoryTables{
			hourly: make(map[hourlyKey]contracts.HourlyRecord),
			daily:  make(map[dailyKey]contracts.DailyRecord),
		}
	}
	return s
}

// InjectFailure makes the next Persist fail with err after afterWrites rows.
// A negative afterWrites clears the injection.
func (s *MemoryStore) InjectFailure(afterWrites int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = afterWrites
	s.failErr = err
}

// SetDailyActual records a measured daily total, the way an external
// metering import would
func (s *MemoryStore) SetDailyActual(t contracts.GenerationType, siteID int64, date time.Time, actual float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, ok := s.tables[t]
	if !ok {
		return fmt.Errorf("no tables for generation type %q", t)
	}
	key := dailyKey{siteID, date.Format(contracts.DateLayout)}
	rec, ok := tbl.daily[key]
	if !ok {
		return fmt.Errorf("no daily row for site %d on %s", siteID, key.date)
	}
	rec.TotalActualGeneration = &actual
	tbl.daily[key] = rec
	return nil
}

// Persist implements contracts.ForecastStore
func (s *MemoryStore) Persist(ctx context.Context, site contracts.Site, hourly []contracts.HourlyPrediction, daily []contracts.DailyPrediction) (contracts.PersistCounts, error) {
	var counts contracts.PersistCounts

	if err := ctx.Err(); err != nil {
		return counts, &contracts.PersistenceError{SiteID: site.ID, Message: "transaction rolled back", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.tables[site.Type]
	if !ok {
		return counts, &contracts.PersistenceError{SiteID: site.ID, Message: "invalid site", Err: fmt.Errorf("no tables for generation type %q", site.Type)}
	}

	work := live.clone()
	now := s.now()
	writes := 0
	checkFailure := func() error {
		if s.failAfter >= 0 && writes >= s.failAfter {
			err := s.failErr
			s.failAfter, s.failErr = -1, nil
			return err
		}
		writes++
		return nil
	}

	for _, h := range hourly {
		if err := checkFailure(); err != nil {
			return contracts.PersistCounts{}, &contracts.PersistenceError{SiteID: site.ID, Message: "transaction rolled back", Err: err}
		}
		key := hourlyKey{site.ID, h.Timestamp.Unix()}
		rec, exists := work.hourly[key]
		if exists {
			counts.HourlyUpdated++
		} else {
			rec = contracts.HourlyRecord{SiteID: site.ID, CreatedAt: now}
			counts.HourlyCreated++
		}
		rec.Timestamp = h.Timestamp
		rec.FeatureSnapshot = append([]byte(nil), h.FeatureSnapshot...)
		rec.PredictedGeneration = h.PredictedGeneration
		rec.UpdatedAt = now
		work.hourly[key] = rec
	}

	for _, d := range daily {
		if err := checkFailure(); err != nil {
			return contracts.PersistCounts{}, &contracts.PersistenceError{SiteID: site.ID, Message: "transaction rolled back", Err: err}
		}
		key := dailyKey{site.ID, d.Date.Format(contracts.DateLayout)}
		rec, exists := work.daily[key]
		if exists {
			counts.DailyUpdated++
		} else {
			rec = contracts.DailyRecord{SiteID: site.ID, CreatedAt: now}
			counts.DailyCreated++
		}
		rec.Date = d.Date
		rec.TotalPredictedGeneration = d.TotalPredictedGeneration
		rec.RecommendationStatus = d.BelowThreshold
		rec.RecommendationMessage = d.RecommendationMessage()
		rec.UpdatedAt = now
		work.daily[key] = rec
	}

	s.tables[site.Type] = work
	return counts, nil
}

// HourlyForDate implements contracts.ForecastStore
func (s *MemoryStore) HourlyForDate(_ context.Context, site contracts.Site, date time.Time) ([]contracts.HourlyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[site.Type]
	if !ok {
		return nil, fmt.Errorf("no tables for generation type %q", site.Type)
	}

	want := date.Format(contracts.DateLayout)
	var out []contracts.HourlyRecord
	for k, rec := range tbl.hourly {
		if k.siteID == site.ID && rec.Timestamp.Format(contracts.DateLayout) == want {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// DailyRange implements contracts.ForecastStore
func (s *MemoryStore) DailyRange(_ context.Context, site contracts.Site, from, to time.Time) ([]contracts.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[site.Type]
	if !ok {
		return nil, fmt.Errorf("no tables for generation type %q", site.Type)
	}

	lo, hi := from.Format(contracts.DateLayout), to.Format(contracts.DateLayout)
	var out []contracts.DailyRecord
	for k, rec := range tbl.daily {
		if k.siteID == site.ID && k.date >= lo && k.date <= hi {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Format(contracts.DateLayout) < out[j].Date.Format(contracts.DateLayout)
	})
	return out, nil
}

// HasDailyOn implements contracts.ForecastStore
func (s *MemoryStore) HasDailyOn(_ context.Context, site contracts.Site, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tbl, ok := s.tables[site.Type]
	if !ok {
		return false, fmt.Errorf("no tables for generation type %q", site.Type)
	}
	_, exists := tbl.daily[dailyKey{site.ID, date.Format(contracts.DateLayout)}]
	return exists, nil
}
