package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/metrics"
	"github.com/wonny/renewcast/internal/model"
	"github.com/wonny/renewcast/internal/predictor"
	"github.com/wonny/renewcast/internal/storage"
)

var testDay = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeWeather struct {
	calls   int32
	byLoc   map[string][]contracts.WeatherObservation
	failLoc map[string]error
}

func (f *fakeWeather) Fetch(ctx context.Context, location string, days int, t contracts.GenerationType) ([]contracts.WeatherObservation, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := f.failLoc[location]; err != nil {
		return nil, err
	}
	return f.byLoc[location], nil
}

type fakeModels map[contracts.GenerationType]*model.Artifact

func (f fakeModels) Get(t contracts.GenerationType) (*model.Artifact, error) {
	a, ok := f[t]
	if !ok {
		return nil, errors.New("no artifact")
	}
	return a, nil
}

// passthrough predicts the first feature (WindSpeed) times slope
func passthrough(t contracts.GenerationType, version string, names []string, slope float64) *model.Artifact {
	coef := make([]float64, len(names))
	coef[0] = slope
	return &model.Artifact{
		GenerationType: t,
		SchemaVersion:  version,
		Features:       names,
		Regressor:      model.Regressor{Kind: model.KindLinear, Coefficients: coef},
	}
}

func testModels() fakeModels {
	return fakeModels{
		contracts.Solar: passthrough(contracts.Solar, predictor.SolarSchemaVersion, predictor.SolarFeatures{}.Names(), 1),
		contracts.Wind:  passthrough(contracts.Wind, predictor.WindSchemaVersion, predictor.WindFeatures{}.Names(), 10),
	}
}

// solarDay returns 24 observations whose daylight hours sum to 1200.45
func solarDay(day time.Time) []contracts.WeatherObservation {
	obs := make([]contracts.WeatherObservation, 24)
	for h := range obs {
		ts := day.Add(time.Duration(h) * time.Hour)
		speed := 5.0
		if h >= DaylightStartHour && h <= DaylightEndHour {
			speed = 85.75
		}
		if h == DaylightEndHour {
			speed = 85.70
		}
		obs[h] = contracts.WeatherObservation{
			Time: ts, Month: int(ts.Month()), Hour: h,
			WindSpeed: speed, Sunshine: 30, Radiation: 400, AirPressure: 1010,
		}
	}
	return obs
}

// windDay returns 24 observations at a constant wind speed
func windDay(day time.Time, speed float64) []contracts.WeatherObservation {
	obs := make([]contracts.WeatherObservation, 24)
	for h := range obs {
		ts := day.Add(time.Duration(h) * time.Hour)
		obs[h] = contracts.WeatherObservation{Time: ts, Month: int(ts.Month()), Hour: h, WindSpeed: speed, WindGust: speed}
	}
	return obs
}

// fakeViews records invalidated cache keys
type fakeViews struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeViews) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeViews) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type harness struct {
	runner  *Runner
	weather *fakeWeather
	store   *storage.MemoryStore
	sites   *storage.MemorySites
	views   *fakeViews
	metrics *metrics.Recorder
}

func newHarness(t *testing.T, sites ...contracts.Site) *harness {
	t.Helper()
	h := &harness{
		weather: &fakeWeather{byLoc: map[string][]contracts.WeatherObservation{}, failLoc: map[string]error{}},
		store:   storage.NewMemoryStore(),
		sites:   storage.NewMemorySites(sites),
		views:   &fakeViews{},
		metrics: metrics.New(),
	}

	opts := DefaultOptions()
	opts.SitesPerSecond = 0
	r, err := NewRunner(Deps{
		Sites:   h.sites,
		Weather: h.weather,
		Store:   h.store,
		Models:  testModels(),
		Views:   h.views,
		Metrics: h.metrics,
	}, opts, zerolog.Nop())
	require.NoError(t, err)
	r.now = func() time.Time { return testDay.Add(9 * time.Hour) }
	h.runner = r
	return h
}

var solarSite = contracts.Site{ID: 1, Name: "Bhopal Solar", Location: "solar-a", Type: contracts.Solar, ThresholdValue: 1500}

func TestRunSiteSolarEndToEnd(t *testing.T) {
	h := newHarness(t, solarSite)
	h.weather.byLoc["solar-a"] = solarDay(testDay)
	ctx := context.Background()

	res, err := h.runner.RunSite(ctx, solarSite.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 24, res.Observations)
	assert.Equal(t, 24, res.Hourly)
	assert.Equal(t, 14, res.Filtered)
	assert.Equal(t, contracts.PersistCounts{HourlyCreated: 24, DailyCreated: 1}, res.Counts)

	require.Len(t, res.Daily, 1)
	assert.Equal(t, 1200.45, res.Daily[0].TotalPredictedGeneration)
	assert.True(t, res.Daily[0].BelowThreshold)

	// all 24 hours are stored, only daylight hours are summed
	hourly, err := h.store.HourlyForDate(ctx, solarSite, testDay)
	require.NoError(t, err)
	assert.Len(t, hourly, 24)

	records, err := h.store.DailyRange(ctx, solarSite, testDay, testDay)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].RecommendationMessage)
	assert.Equal(t, contracts.BelowThresholdMessage, *records[0].RecommendationMessage)

	rec := EvaluateRecommendation(solarSite, PeriodToday, testDay, records)
	assert.InDelta(t, 299.55, rec.TotalDeficit, 1e-9)
	assert.InDelta(t, 121.77, rec.CoalRequiredKg, 0.005)
}

func TestRunSiteIsIdempotent(t *testing.T) {
	h := newHarness(t, solarSite)
	h.weather.byLoc["solar-a"] = solarDay(testDay)
	ctx := context.Background()

	_, err := h.runner.RunSite(ctx, solarSite.ID)
	require.NoError(t, err)
	res, err := h.runner.RunSite(ctx, solarSite.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Counts.Created())
	assert.Equal(t, 25, res.Counts.Updated())

	hourly, err := h.store.HourlyForDate(ctx, solarSite, testDay)
	require.NoError(t, err)
	assert.Len(t, hourly, 24)
}

func TestRunSiteWindCountsAllHours(t *testing.T) {
	site := contracts.Site{ID: 2, Location: "wind-a", Type: contracts.Wind, ThresholdValue: 5000}
	h := newHarness(t, site)
	obs := windDay(testDay, 10)
	obs[0].WindSpeed = 2.9  // below cut-in
	obs[1].WindSpeed = 25.1 // above cut-out
	h.weather.byLoc["wind-a"] = obs

	res, err := h.runner.RunSite(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, 24, res.Filtered)
	require.Len(t, res.Daily, 1)
	assert.Equal(t, 2200.0, res.Daily[0].TotalPredictedGeneration)
	assert.True(t, res.Daily[0].BelowThreshold)
}

func TestRunSiteUnknownSite(t *testing.T) {
	h := newHarness(t)
	_, err := h.runner.RunSite(context.Background(), 404)
	assert.ErrorIs(t, err, contracts.ErrSiteNotFound)
	assert.Zero(t, atomic.LoadInt32(&h.weather.calls))
}

func TestRunSiteIngestionFailureCarriesSite(t *testing.T) {
	h := newHarness(t, solarSite)
	h.weather.failLoc["solar-a"] = &contracts.IngestionError{Message: "weather provider returned status 503"}

	_, err := h.runner.RunSite(context.Background(), solarSite.ID)
	var ie *contracts.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, solarSite.ID, ie.SiteID)

	exists, err := h.store.HasDailyOn(context.Background(), solarSite, testDay)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunSitePredictionFailureWritesNothing(t *testing.T) {
	h := newHarness(t, solarSite)
	obs := solarDay(testDay)
	obs[3].AirPressure = math.NaN()
	h.weather.byLoc["solar-a"] = obs

	_, err := h.runner.RunSite(context.Background(), solarSite.ID)
	stage, ok := contracts.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, contracts.StagePrediction, stage)

	hourly, err := h.store.HourlyForDate(context.Background(), solarSite, testDay)
	require.NoError(t, err)
	assert.Empty(t, hourly)
}

func TestRunSitePersistenceFailureRollsBack(t *testing.T) {
	h := newHarness(t, solarSite)
	h.weather.byLoc["solar-a"] = solarDay(testDay)
	h.store.InjectFailure(12, errors.New("connection reset"))

	_, err := h.runner.RunSite(context.Background(), solarSite.ID)
	var pe *contracts.PersistenceError
	require.ErrorAs(t, err, &pe)

	hourly, err := h.store.HourlyForDate(context.Background(), solarSite, testDay)
	require.NoError(t, err)
	assert.Empty(t, hourly)
}

func TestRunSiteCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, solarSite)
	h.weather.byLoc["solar-a"] = solarDay(testDay)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.RunSite(ctx, solarSite.ID)
	require.Error(t, err)
}

func TestRunSiteSerialisesSameSite(t *testing.T) {
	h := newHarness(t, solarSite)
	h.weather.byLoc["solar-a"] = solarDay(testDay)

	var wg sync.WaitGroup
	var created int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.runner.RunSite(context.Background(), solarSite.ID)
			if assert.NoError(t, err) {
				atomic.AddInt32(&created, int32(res.Counts.Created()))
			}
		}()
	}
	wg.Wait()

	// exactly one run inserted, the rest updated
	assert.Equal(t, int32(25), atomic.LoadInt32(&created))
}

func TestRunAllIsolatesFailures(t *testing.T) {
	sites := []contracts.Site{
		{ID: 1, Location: "ok-1", Type: contracts.Solar, ThresholdValue: 1500},
		{ID: 2, Location: "broken", Type: contracts.Solar, ThresholdValue: 1500},
		{ID: 3, Location: "ok-3", Type: contracts.Solar, ThresholdValue: 1500},
		{ID: 4, Location: "wind", Type: contracts.Wind, ThresholdValue: 1500},
	}
	h := newHarness(t, sites...)
	h.weather.byLoc["ok-1"] = solarDay(testDay)
	h.weather.byLoc["ok-3"] = solarDay(testDay)
	h.weather.failLoc["broken"] = &contracts.IngestionError{Message: "weather provider unreachable"}

	batch, err := h.runner.RunAll(context.Background(), contracts.Solar)
	require.Error(t, err)
	var ie *contracts.IngestionError
	assert.ErrorAs(t, err, &ie)

	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, int64(2), batch.Results[1].SiteID)
	assert.Equal(t, string(contracts.StageIngestion), batch.Results[1].Stage)
	assert.NotNil(t, batch.Results[0].Result)
	assert.NotNil(t, batch.Results[2].Result)

	for _, id := range []int64{1, 3} {
		exists, err := h.store.HasDailyOn(context.Background(), contracts.Site{ID: id, Type: contracts.Solar}, testDay)
		require.NoError(t, err)
		assert.True(t, exists, "site %d", id)
	}
}

func TestRunAllInvalidatesRecommendationViews(t *testing.T) {
	h := newHarness(t,
		contracts.Site{ID: 1, Location: "ok-1", Type: contracts.Solar, ThresholdValue: 1500},
		contracts.Site{ID: 2, Location: "broken", Type: contracts.Solar, ThresholdValue: 1500},
	)
	h.weather.byLoc["ok-1"] = solarDay(testDay)
	h.weather.failLoc["broken"] = &contracts.IngestionError{Message: "weather provider unreachable"}

	_, err := h.runner.RunAll(context.Background(), contracts.Solar)
	require.Error(t, err)

	assert.ElementsMatch(t, RecommendationKeys(1), h.views.keys(), "only the stored site is invalidated")
}

func TestRunAllRejectsUnknownType(t *testing.T) {
	h := newHarness(t)
	_, err := h.runner.RunAll(context.Background(), "hydro")
	assert.Error(t, err)
}

func TestRunAllNoSites(t *testing.T) {
	h := newHarness(t)
	batch, err := h.runner.RunAll(context.Background(), contracts.Wind)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
}

func TestRunAllPacedSweepHonoursCancel(t *testing.T) {
	sites := make([]contracts.Site, 5)
	for i := range sites {
		sites[i] = contracts.Site{ID: int64(i + 1), Location: "ok", Type: contracts.Solar, ThresholdValue: 1}
	}
	h := newHarness(t, sites...)
	h.weather.byLoc["ok"] = solarDay(testDay)
	h.runner.opts.SitesPerSecond = 0.5

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	batch, err := h.runner.RunAll(ctx, contracts.Solar)
	require.Error(t, err)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 4, batch.Failed)
}

func TestEnsureToday(t *testing.T) {
	h := newHarness(t, solarSite)
	h.runner.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local) }
	h.weather.byLoc["solar-a"] = solarDay(time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local))
	ctx := context.Background()

	res, ran, err := h.runner.EnsureToday(ctx, solarSite.ID)
	require.NoError(t, err)
	assert.True(t, ran)
	require.NotNil(t, res)

	res, ran, err = h.runner.EnsureToday(ctx, solarSite.ID)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Nil(t, res)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.weather.calls))
}

func TestEnsureTodayUsesSiteZone(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	site := solarSite
	site.Timezone = "Asia/Kolkata"
	h := newHarness(t, site)
	h.weather.byLoc["solar-a"] = solarDay(time.Date(2024, 6, 1, 0, 0, 0, 0, ist))
	ctx := context.Background()

	_, err = h.runner.RunSite(ctx, site.ID)
	require.NoError(t, err)

	// 2024-06-01 17:30 IST: the stored day is today
	h.runner.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	_, ran, err := h.runner.EnsureToday(ctx, site.ID)
	require.NoError(t, err)
	assert.False(t, ran)

	// 2024-06-02 01:30 IST while UTC is still on June 1
	h.runner.now = func() time.Time { return time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC) }
	_, ran, err = h.runner.EnsureToday(ctx, site.ID)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestZoneFallsBackToProviderZone(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	h := newHarness(t, solarSite)
	h.weather.byLoc["solar-a"] = solarDay(time.Date(2024, 6, 1, 0, 0, 0, 0, ist))

	assert.Equal(t, time.Local, h.runner.Zone(solarSite))

	_, err = h.runner.RunSite(context.Background(), solarSite.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", h.runner.Zone(solarSite).String())

	configured := solarSite
	configured.Timezone = "Europe/Berlin"
	assert.Equal(t, "Europe/Berlin", h.runner.Zone(configured).String())
}

func TestNewRunnerRequiresDeps(t *testing.T) {
	_, err := NewRunner(Deps{}, DefaultOptions(), zerolog.Nop())
	assert.Error(t, err)
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.lock(context.Background(), "site:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.lock(ctx, "site:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := k.lock(context.Background(), "site:2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := k.lock(context.Background(), "site:1")
	require.NoError(t, err)
	again()
}
