package pipeline

import (
	"math"
	"sort"

	"github.com/wonny/renewcast/internal/contracts"
)

// Aggregate sums hourly predictions per calendar date and flags days below threshold.
// Dates are taken in each timestamp's own location; output is ascending by date.
func Aggregate(hourly []contracts.HourlyPrediction, threshold float64) []contracts.DailyPrediction {
	sums := make(map[string]float64)
	dates := make(map[string]contracts.DailyPrediction)

	for _, h := range hourly {
		day := contracts.CivilDate(h.Timestamp)
		key := day.Format(contracts.DateLayout)
		if _, ok := dates[key]; !ok {
			dates[key] = contracts.DailyPrediction{Date: day}
		}
		sums[key] += h.PredictedGeneration
	}

	keys := make([]string, 0, len(dates))
	for k := range dates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	daily := make([]contracts.DailyPrediction, 0, len(keys))
	for _, k := range keys {
		d := dates[k]
		d.TotalPredictedGeneration = round2(sums[k])
		d.BelowThreshold = d.TotalPredictedGeneration < threshold
		daily = append(daily, d)
	}
	return daily
}

// round2 rounds half away from zero to two decimals
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
