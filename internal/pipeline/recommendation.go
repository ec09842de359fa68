package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/pkg/redis"
)

// CoalEfficiencyKWhPerKg is the approximate electricity yield of one kg of coal
const CoalEfficiencyKWhPerKg = 2.46

// UpcomingDays is how far past today the upcoming period reaches
const UpcomingDays = 5

// RecommendationMessage returns the stored message for a daily prediction
func RecommendationMessage(d contracts.DailyPrediction) *string {
	return d.RecommendationMessage()
}

// Period selects the daily rows a recommendation covers
type Period string

const (
	PeriodPast     Period = "past"
	PeriodToday    Period = "today"
	PeriodUpcoming Period = "upcoming"
)

// ParsePeriod accepts past, today or upcoming; empty means upcoming
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodUpcoming, nil
	case PeriodPast, PeriodToday, PeriodUpcoming:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q (want past, today or upcoming)", s)
}

// Range returns the inclusive date bounds of p relative to today
func (p Period) Range(today time.Time) (from, to time.Time) {
	today = contracts.CivilDate(today)
	switch p {
	case PeriodPast:
		return time.Date(1, 1, 1, 0, 0, 0, 0, today.Location()), today.AddDate(0, 0, -1)
	case PeriodToday:
		return today, today
	default:
		return today, today.AddDate(0, 0, UpcomingDays)
	}
}

// RecommendationKeys lists the cache keys of every recommendation view of a site
func RecommendationKeys(siteID int64) []string {
	return []string{
		redis.RecommendationKey(siteID, string(PeriodPast)),
		redis.RecommendationKey(siteID, string(PeriodToday)),
		redis.RecommendationKey(siteID, string(PeriodUpcoming)),
	}
}

// DeficitDay is one below-threshold day of a recommendation
type DeficitDay struct {
	Date                string  `json:"date"`
	PredictedGeneration float64 `json:"predicted_generation"`
	Threshold           float64 `json:"threshold"`
	Deficit             float64 `json:"deficit"`
}

// Recommendation is the backup-capacity view for one site and period
type Recommendation struct {
	SiteID         int64                    `json:"site_id"`
	Type           contracts.GenerationType `json:"generation_type"`
	Period         Period                   `json:"period"`
	From           string                   `json:"from"`
	To             string                   `json:"to"`
	Threshold      float64                  `json:"threshold"`
	Days           []DeficitDay             `json:"days"`
	TotalDeficit   float64                  `json:"total_deficit"`
	CoalRequiredKg float64                  `json:"coal_required_kg"`
}

// EvaluateRecommendation collects the shortfall days of records.
// A day counts when its stored flag is set or its total is under the threshold.
func EvaluateRecommendation(site contracts.Site, period Period, today time.Time, records []contracts.DailyRecord) Recommendation {
	from, to := period.Range(today)
	rec := Recommendation{
		SiteID:    site.ID,
		Type:      site.Type,
		Period:    period,
		From:      from.Format(contracts.DateLayout),
		To:        to.Format(contracts.DateLayout),
		Threshold: site.ThresholdValue,
		Days:      []DeficitDay{},
	}

	for _, r := range records {
		if !r.RecommendationStatus && !(r.TotalPredictedGeneration < site.ThresholdValue) {
			continue
		}
		deficit := EnergyDeficit(site.ThresholdValue, r.TotalPredictedGeneration)
		rec.Days = append(rec.Days, DeficitDay{
			Date:                r.Date.Format(contracts.DateLayout),
			PredictedGeneration: r.TotalPredictedGeneration,
			Threshold:           site.ThresholdValue,
			Deficit:             deficit,
		})
		rec.TotalDeficit += deficit
	}

	rec.CoalRequiredKg = CoalRequired(rec.TotalDeficit)
	return rec
}

// EnergyDeficit is the shortfall against threshold, floored at zero
func EnergyDeficit(threshold, total float64) float64 {
	return math.Max(0, threshold-total)
}

// CoalRequired converts an energy deficit into kg of coal
func CoalRequired(totalDeficit float64) float64 {
	return totalDeficit / CoalEfficiencyKWhPerKg
}
