package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/metrics"
	"github.com/wonny/renewcast/internal/predictor"
	"github.com/wonny/renewcast/pkg/config"
	"github.com/wonny/renewcast/pkg/redis"
)

// Options controls run execution
type Options struct {
	ForecastDays   int
	Concurrency    int
	SitesPerSecond float64 // 0 disables pacing
	PersistTimeout time.Duration
	LockTTL        time.Duration
}

// DefaultOptions returns the defaults used when no configuration is given
func DefaultOptions() Options {
	return Options{
		ForecastDays:   5,
		Concurrency:    4,
		SitesPerSecond: 2,
		PersistTimeout: 60 * time.Second,
		LockTTL:        5 * time.Minute,
	}
}

// OptionsFromConfig maps the pipeline and weather sections of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ForecastDays:   cfg.Weather.ForecastDays,
		Concurrency:    cfg.Pipeline.Concurrency,
		SitesPerSecond: cfg.Pipeline.SitesPerSecond,
		PersistTimeout: cfg.Pipeline.PersistTimeout,
		LockTTL:        cfg.Pipeline.LockTTL,
	}
}

// ViewCache drops cached read views. *redis.Cache implements it.
type ViewCache interface {
	Delete(ctx context.Context, keys ...string) error
}

// Deps are the collaborators of a Runner. Locker, Views and Metrics may be nil.
type Deps struct {
	Sites   contracts.SiteDirectory
	Weather contracts.WeatherSource
	Store   contracts.ForecastStore
	Models  predictor.ModelSource
	Locker  *redis.Locker
	Views   ViewCache
	Metrics *metrics.Recorder
}

// RunResult summarises one successful single-site run
type RunResult struct {
	RunID        string                      `json:"run_id"`
	SiteID       int64                       `json:"site_id"`
	Type         contracts.GenerationType    `json:"generation_type"`
	Observations int                         `json:"observations"`
	Hourly       int                         `json:"hourly"`
	Filtered     int                         `json:"filtered"`
	Daily        []contracts.DailyPrediction `json:"daily"`
	Counts       contracts.PersistCounts     `json:"counts"`
	Duration     time.Duration               `json:"-"`
	DurationMS   int64                       `json:"duration_ms"`
}

// SiteOutcome is one site's entry in a sweep
type SiteOutcome struct {
	SiteID int64      `json:"site_id"`
	Result *RunResult `json:"result,omitempty"`
	Err    error      `json:"-"`
	Error  string     `json:"error,omitempty"`
	Stage  string     `json:"stage,omitempty"`
}

// BatchResult is the outcome of sweeping every site of one type
type BatchResult struct {
	Type      contracts.GenerationType `json:"generation_type"`
	Results   []SiteOutcome            `json:"results"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
}

// Runner executes the forecast pipeline
// ⭐ SSOT: 수집 → 예측 → 필터 → 집계 → 저장 순서는 여기서만
type Runner struct {
	sites      contracts.SiteDirectory
	weather    contracts.WeatherSource
	store      contracts.ForecastStore
	predictors map[contracts.GenerationType]predictor.Predictor
	locker     *redis.Locker
	views      ViewCache
	metrics    *metrics.Recorder
	opts       Options
	siteLocks  *keyedMutex
	zones      sync.Map // site id → provider zone of the last fetch
	now        func() time.Time
	log        zerolog.Logger
}

// NewRunner wires a runner. Every generation type gets its predictor up front.
func NewRunner(deps Deps, opts Options, log zerolog.Logger) (*Runner, error) {
	if deps.Sites == nil || deps.Weather == nil || deps.Store == nil || deps.Models == nil {
		return nil, errors.New("runner requires sites, weather, store and models")
	}
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = DefaultOptions().ForecastDays
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultOptions().PersistTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultOptions().LockTTL
	}

	r := &Runner{
		sites:      deps.Sites,
		weather:    deps.Weather,
		store:      deps.Store,
		predictors: make(map[contracts.GenerationType]predictor.Predictor, len(contracts.GenerationTypes)),
		locker:     deps.Locker,
		views:      deps.Views,
		metrics:    deps.Metrics,
		opts:       opts,
		siteLocks:  newKeyedMutex(),
		now:        time.Now,
		log:        log.With().Str("component", "pipeline.runner").Logger(),
	}
	for _, t := range contracts.GenerationTypes {
		p, err := predictor.New(t, deps.Models, log)
		if err != nil {
			return nil, err
		}
		r.predictors[t] = p
	}
	return r, nil
}

// Options returns the effective options
func (r *Runner) Options() Options {
	return r.opts
}

// Zone returns the zone whose calendar day is "today" for site.
// Order: the configured site zone, the provider zone of the last fetch, time.Local.
func (r *Runner) Zone(site contracts.Site) *time.Location {
	if loc, ok := site.Zone(); ok {
		return loc
	}
	if loc, ok := r.zones.Load(site.ID); ok {
		return loc.(*time.Location)
	}
	return time.Local
}

// RunSite runs the pipeline for one site.
// Runs for the same site are serialised; other sites proceed in parallel.
func (r *Runner) RunSite(ctx context.Context, siteID int64) (*RunResult, error) {
	site, err := r.sites.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, *site)
}

// RunAll sweeps every site of t with bounded concurrency.
// A failing site never stops the others; the returned error joins all failures.
func (r *Runner) RunAll(ctx context.Context, t contracts.GenerationType) (*BatchResult, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown generation type %q", t)
	}

	sites, err := r.sites.ListByType(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list %s sites: %w", t, err)
	}

	start := time.Now()
	batch := &BatchResult{Type: t, Results: make([]SiteOutcome, len(sites))}

	var limiter *rate.Limiter
	if r.opts.SitesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.SitesPerSecond), 1)
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	for i, site := range sites {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				// 취소된 경우 남은 사이트는 실행하지 않음
				for j := i; j < len(sites); j++ {
					batch.Results[j] = outcome(sites[j].ID, nil, err)
				}
				break
			}
		}
		g.Go(func() error {
			res, err := r.run(ctx, site)
			batch.Results[i] = outcome(site.ID, res, err)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range batch.Results {
		if o.Err != nil {
			batch.Failed++
			errs = append(errs, o.Err)
			continue
		}
		batch.Succeeded++
	}
	r.metrics.ObserveSweep(t, batch.Succeeded, batch.Failed)

	r.log.Info().
		Str("generation_type", string(t)).
		Int("sites", len(sites)).
		Int("succeeded", batch.Succeeded).
		Int("failed", batch.Failed).
		Dur("duration", time.Since(start)).
		Msg("sweep completed")

	return batch, errors.Join(errs...)
}

// EnsureToday runs the pipeline only when the site has no daily record for today.
// The second return value reports whether a run happened.
func (r *Runner) EnsureToday(ctx context.Context, siteID int64) (*RunResult, bool, error) {
	site, err := r.sites.Get(ctx, siteID)
	if err != nil {
		return nil, false, err
	}

	today := contracts.CivilDate(r.now().In(r.Zone(*site)))
	exists, err := r.store.HasDailyOn(ctx, *site, today)
	if err != nil {
		return nil, false, &contracts.PersistenceError{SiteID: site.ID, Message: "check today's record", Err: err}
	}
	if exists {
		return nil, false, nil
	}

	r.log.Info().
		Int64("site_id", site.ID).
		Str("date", today.Format(contracts.DateLayout)).
		Msg("no forecast for today, running on demand")

	res, err := r.run(ctx, *site)
	return res, true, err
}

// run holds the per-site locks around execute and records the outcome
func (r *Runner) run(ctx context.Context, site contracts.Site) (*RunResult, error) {
	runID := uuid.NewString()
	log := r.log.With().
		Str("run_id", runID).
		Int64("site_id", site.ID).
		Str("generation_type", string(site.Type)).
		Logger()

	key := fmt.Sprintf("site:%d", site.ID)
	unlock, err := r.siteLocks.lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("wait for site %d: %w", site.ID, err)
	}
	defer unlock()

	if r.locker != nil {
		lock, err := r.locker.Acquire(ctx, key, r.opts.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock site %d: %w", site.ID, err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("release site lock")
			}
		}()
	}

	start := time.Now()
	res, err := r.execute(ctx, log, site)
	elapsed := time.Since(start)
	r.metrics.ObserveRun(site.Type, elapsed, err)

	if err != nil {
		ev := log.Error().Err(err).Dur("duration", elapsed)
		if stage, ok := contracts.StageOf(err); ok {
			ev = ev.Str("stage", string(stage))
		}
		ev.Msg("forecast run failed")
		return nil, err
	}

	r.invalidateViews(ctx, log, site.ID)

	res.RunID = runID
	res.Duration = elapsed
	res.DurationMS = elapsed.Milliseconds()

	log.Info().
		Int("observations", res.Observations).
		Int("filtered", res.Filtered).
		Int("days", len(res.Daily)).
		Int("created", res.Counts.Created()).
		Int("updated", res.Counts.Updated()).
		Dur("duration", elapsed).
		Msg("forecast run completed")

	return res, nil
}

// invalidateViews drops cached recommendation views after new predictions were stored
func (r *Runner) invalidateViews(ctx context.Context, log zerolog.Logger, siteID int64) {
	if r.views == nil {
		return
	}
	if err := r.views.Delete(context.WithoutCancel(ctx), RecommendationKeys(siteID)...); err != nil {
		log.Warn().Err(err).Msg("recommendation cache invalidation failed")
	}
}

func (r *Runner) execute(ctx context.Context, log zerolog.Logger, site contracts.Site) (*RunResult, error) {
	p, ok := r.predictors[site.Type]
	if !ok {
		return nil, &contracts.PredictionError{SiteID: site.ID, Message: fmt.Sprintf("unsupported generation type %q", site.Type)}
	}

	// 1. 날씨 수집
	observations, err := r.weather.Fetch(ctx, site.Location, r.opts.ForecastDays, site.Type)
	if err != nil {
		var ie *contracts.IngestionError
		if errors.As(err, &ie) && ie.SiteID == 0 {
			ie.SiteID = site.ID
		}
		return nil, err
	}
	if len(observations) > 0 {
		r.zones.Store(site.ID, observations[0].Time.Location())
	}

	// 2. 시간별 예측
	hourly, err := p.Predict(ctx, observations, site.ID)
	if err != nil {
		return nil, err
	}

	// 3. 유효 시간 필터 + 일별 집계
	filtered := FilterValid(site.Type, hourly)
	daily := Aggregate(filtered, site.ThresholdValue)

	log.Debug().
		Int("hourly", len(hourly)).
		Int("filtered", len(filtered)).
		Int("days", len(daily)).
		Msg("predictions aggregated")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run for site %d cancelled before persistence: %w", site.ID, err)
	}

	// 4. 저장 (시작된 트랜잭션은 호출자 취소와 무관하게 완료)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.PersistTimeout)
	defer cancel()

	counts, err := r.store.Persist(persistCtx, site, hourly, daily)
	if err != nil {
		return nil, err
	}
	r.metrics.AddPersisted(site.Type, counts)

	return &RunResult{
		SiteID:       site.ID,
		Type:         site.Type,
		Observations: len(observations),
		Hourly:       len(hourly),
		Filtered:     len(filtered),
		Daily:        daily,
		Counts:       counts,
	}, nil
}

func outcome(siteID int64, res *RunResult, err error) SiteOutcome {
	o := SiteOutcome{SiteID: siteID, Result: res, Err: err}
	if err != nil {
		o.Error = err.Error()
		if stage, ok := contracts.StageOf(err); ok {
			o.Stage = string(stage)
		}
	}
	return o
}

// keyedMutex serialises work per key; waiting honours ctx
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]chan struct{})}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		k.slots[key] = slot
	}
	k.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
