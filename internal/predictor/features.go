package predictor

import (
	"sort"

	"github.com/wonny/renewcast/internal/contracts"
)

// Feature schema versions, matched against the artifact's schema_version
const (
	SolarSchemaVersion = "solar.v1"
	WindSchemaVersion  = "wind.v1"
)

var (
	solarFeatureNames = []string{
		"WindSpeed", "Sunshine", "AirPressure", "Radiation",
		"AirTemperature", "RelativeAirHumidity", "Month", "Hour",
	}
	windFeatureNames = []string{
		"WindSpeed", "WindGust", "WindDirectionDeviation", "AirPressure",
		"AirTemperature", "RelativeAirHumidity", "Precipitation", "Month", "Hour",
	}
)

// SolarFeatures is the solar.v1 model input; field order is the vector order
type SolarFeatures struct {
	WindSpeed           float64 `json:"WindSpeed"`
	Sunshine            float64 `json:"Sunshine"`
	AirPressure         float64 `json:"AirPressure"`
	Radiation           float64 `json:"Radiation"` // centred by the batch median
	AirTemperature      float64 `json:"AirTemperature"`
	RelativeAirHumidity float64 `json:"RelativeAirHumidity"`
	Month               int     `json:"Month"`
	Hour                int     `json:"Hour"`
}

func (SolarFeatures) Names() []string { return solarFeatureNames }

func (f SolarFeatures) Vector() []float64 {
	return []float64{
		f.WindSpeed, f.Sunshine, f.AirPressure, f.Radiation,
		f.AirTemperature, f.RelativeAirHumidity, float64(f.Month), float64(f.Hour),
	}
}

// WindFeatures is the wind.v1 model input; field order is the vector order
type WindFeatures struct {
	WindSpeed              float64 `json:"WindSpeed"`
	WindGust               float64 `json:"WindGust"`
	WindDirectionDeviation float64 `json:"WindDirectionDeviation"`
	AirPressure            float64 `json:"AirPressure"`
	AirTemperature         float64 `json:"AirTemperature"`
	RelativeAirHumidity    float64 `json:"RelativeAirHumidity"`
	Precipitation          float64 `json:"Precipitation"`
	Month                  int     `json:"Month"`
	Hour                   int     `json:"Hour"`
}

func (WindFeatures) Names() []string { return windFeatureNames }

func (f WindFeatures) Vector() []float64 {
	return []float64{
		f.WindSpeed, f.WindGust, f.WindDirectionDeviation, f.AirPressure,
		f.AirTemperature, f.RelativeAirHumidity, f.Precipitation, float64(f.Month), float64(f.Hour),
	}
}

// SolarFeaturesFrom builds solar rows with radiation centred on the batch median
func SolarFeaturesFrom(observations []contracts.WeatherObservation) []SolarFeatures {
	radiation := make([]float64, len(observations))
	for i, o := range observations {
		radiation[i] = o.Radiation
	}
	m := median(radiation)

	rows := make([]SolarFeatures, len(observations))
	for i, o := range observations {
		rows[i] = SolarFeatures{
			WindSpeed:           o.WindSpeed,
			Sunshine:            o.Sunshine,
			AirPressure:         o.AirPressure,
			Radiation:           o.Radiation - m,
			AirTemperature:      o.AirTemperature,
			RelativeAirHumidity: o.RelativeAirHumidity,
			Month:               o.Month,
			Hour:                o.Hour,
		}
	}
	return rows
}

// WindFeaturesFrom builds wind rows
func WindFeaturesFrom(observations []contracts.WeatherObservation) []WindFeatures {
	rows := make([]WindFeatures, len(observations))
	for i, o := range observations {
		rows[i] = WindFeatures{
			WindSpeed:              o.WindSpeed,
			WindGust:               o.WindGust,
			WindDirectionDeviation: o.WindDirectionDeviation,
			AirPressure:            o.AirPressure,
			AirTemperature:         o.AirTemperature,
			RelativeAirHumidity:    o.RelativeAirHumidity,
			Precipitation:          o.Precipitation,
			Month:                  o.Month,
			Hour:                   o.Hour,
		}
	}
	return rows
}

// median of an even-length batch is the mean of the two middle values
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
