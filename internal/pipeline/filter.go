package pipeline

import (
	"github.com/wonny/renewcast/internal/contracts"
)

// Daylight window for solar aggregation, both hours inclusive
const (
	DaylightStartHour = 7
	DaylightEndHour   = 20
)

// FilterDaylight keeps predictions whose local hour is within the daylight window.
// Order is preserved.
func FilterDaylight(predictions []contracts.HourlyPrediction) []contracts.HourlyPrediction {
	out := make([]contracts.HourlyPrediction, 0, len(predictions))
	for _, p := range predictions {
		if h := p.Timestamp.Hour(); h >= DaylightStartHour && h <= DaylightEndHour {
			out = append(out, p)
		}
	}
	return out
}

// FilterValid returns the predictions that count toward daily totals.
// 태양광만 일조 시간대로 제한, 풍력은 24시간 전부 유효
func FilterValid(t contracts.GenerationType, predictions []contracts.HourlyPrediction) []contracts.HourlyPrediction {
	if t == contracts.Solar {
		return FilterDaylight(predictions)
	}
	return predictions
}
