package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/pipeline"
	"github.com/wonny/renewcast/pkg/logger"
	"github.com/wonny/renewcast/pkg/redis"
)

// Runner is the part of pipeline.Runner the API triggers
type Runner interface {
	RunSite(ctx context.Context, siteID int64) (*pipeline.RunResult, error)
	RunAll(ctx context.Context, t contracts.GenerationType) (*pipeline.BatchResult, error)
	EnsureToday(ctx context.Context, siteID int64) (*pipeline.RunResult, bool, error)
	Zone(site contracts.Site) *time.Location
}

// ForecastHandler handles forecast API endpoints
// ⭐ SSOT: Forecast API 핸들러는 이 구조체에서만
type ForecastHandler struct {
	runner Runner
	sites  contracts.SiteDirectory
	store  contracts.ForecastStore
	cache  *redis.Cache
	now    func() time.Time
	logger *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(
	runner Runner,
	sites contracts.SiteDirectory,
	store contracts.ForecastStore,
	cache *redis.Cache,
	log *logger.Logger,
) *ForecastHandler {
	return &ForecastHandler{
		runner: runner,
		sites:  sites,
		store:  store,
		cache:  cache,
		now:    time.Now,
		logger: log,
	}
}

// DailyResponse is the daily series of one site
type DailyResponse struct {
	Site         contracts.Site          `json:"site"`
	From         string                  `json:"from"`
	To           string                  `json:"to"`
	Daily        []contracts.DailyRecord `json:"daily"`
	Refreshed    bool                    `json:"refreshed"`
	RefreshError string                  `json:"refresh_error,omitempty"`
}

// HourlyResponse is the stored hourly series of one site and date
type HourlyResponse struct {
	Site   contracts.Site           `json:"site"`
	Date   string                   `json:"date"`
	Hourly []contracts.HourlyRecord `json:"hourly"`
}

// RunSite runs the pipeline for one site
// POST /api/sites/{id}/forecast
func (h *ForecastHandler) RunSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := parseSiteID(w, r)
	if !ok {
		return
	}

	result, err := h.runner.RunSite(r.Context(), siteID)
	if err != nil {
		h.logger.WithError(err).WithField("site_id", siteID).Warn("Forecast run failed")
		respondPipelineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// RefreshType sweeps every site of one generation type
// POST /api/forecast/{type}/refresh
func (h *ForecastHandler) RefreshType(w http.ResponseWriter, r *http.Request) {
	t, err := contracts.ParseGenerationType(mux.Vars(r)["type"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.runner.RunAll(r.Context(), t)
	if batch == nil {
		h.logger.WithError(err).WithField("generation_type", string(t)).Error("Sweep failed to start")
		respondPipelineError(w, err)
		return
	}

	// 부분 실패는 결과 목록으로 전달
	respondJSON(w, http.StatusOK, batch)
}

// GetDaily returns stored daily predictions, upcoming window by default
// GET /api/sites/{id}/daily?ensure=true&from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *ForecastHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	site, ok := h.lookupSite(w, r)
	if !ok {
		return
	}

	from, to := pipeline.PeriodUpcoming.Range(h.today(*site))
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseDate(v); err != nil {
			respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseDate(v); err != nil {
			respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		respondError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	resp := DailyResponse{
		Site: *site,
		From: from.Format(contracts.DateLayout),
		To:   to.Format(contracts.DateLayout),
	}

	if ensure, _ := strconv.ParseBool(r.URL.Query().Get("ensure")); ensure {
		_, ran, err := h.runner.EnsureToday(ctx, site.ID)
		resp.Refreshed = ran && err == nil
		if err != nil {
			// 저장된 데이터는 그대로 보여줌
			h.logger.WithError(err).WithField("site_id", site.ID).Warn("On-demand forecast failed")
			resp.RefreshError = err.Error()
		}
	}

	records, err := h.store.DailyRange(ctx, *site, from, to)
	if err != nil {
		h.logger.WithError(err).WithField("site_id", site.ID).Error("Failed to get daily predictions")
		respondError(w, http.StatusServiceUnavailable, "failed to get daily predictions")
		return
	}
	resp.Daily = nonNil(records)

	respondJSON(w, http.StatusOK, resp)
}

// GetHourly returns stored hourly predictions of one forecast date
// GET /api/sites/{id}/hourly?date=YYYY-MM-DD
func (h *ForecastHandler) GetHourly(w http.ResponseWriter, r *http.Request) {
	site, ok := h.lookupSite(w, r)
	if !ok {
		return
	}

	date := contracts.CivilDate(h.today(*site))
	if v := r.URL.Query().Get("date"); v != "" {
		var err error
		if date, err = parseDate(v); err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	records, err := h.store.HourlyForDate(r.Context(), *site, date)
	if err != nil {
		h.logger.WithError(err).WithField("site_id", site.ID).Error("Failed to get hourly predictions")
		respondError(w, http.StatusServiceUnavailable, "failed to get hourly predictions")
		return
	}

	respondJSON(w, http.StatusOK, HourlyResponse{
		Site:   *site,
		Date:   date.Format(contracts.DateLayout),
		Hourly: nonNil(records),
	})
}

// GetRecommendation returns the shortfall days and coal requirement of a period
// GET /api/sites/{id}/recommendation?period=upcoming|today|past
func (h *ForecastHandler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	site, ok := h.lookupSite(w, r)
	if !ok {
		return
	}

	period, err := pipeline.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := redis.RecommendationKey(site.ID, string(period))
	var cached pipeline.Recommendation
	if hit, err := h.cache.Get(ctx, key, &cached); err != nil {
		h.logger.WithError(err).Warn("Recommendation cache read failed")
	} else if hit {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	today := h.today(*site)
	from, to := period.Range(today)
	records, err := h.store.DailyRange(ctx, *site, from, to)
	if err != nil {
		h.logger.WithError(err).WithField("site_id", site.ID).Error("Failed to get daily predictions")
		respondError(w, http.StatusServiceUnavailable, "failed to get daily predictions")
		return
	}

	rec := pipeline.EvaluateRecommendation(*site, period, today, records)
	if err := h.cache.Set(ctx, key, rec, redis.TTLRecommendation); err != nil {
		h.logger.WithError(err).Warn("Recommendation cache write failed")
	}

	respondJSON(w, http.StatusOK, rec)
}

func (h *ForecastHandler) lookupSite(w http.ResponseWriter, r *http.Request) (*contracts.Site, bool) {
	siteID, ok := parseSiteID(w, r)
	if !ok {
		return nil, false
	}
	site, err := h.sites.Get(r.Context(), siteID)
	if err != nil {
		respondPipelineError(w, err)
		return nil, false
	}
	return site, true
}

// today is the current time in the site's zone
func (h *ForecastHandler) today(site contracts.Site) time.Time {
	return h.now().In(h.runner.Zone(site))
}

func parseSiteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "site id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(contracts.DateLayout, s, time.Local)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
