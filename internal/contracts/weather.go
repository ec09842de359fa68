package contracts

import "time"

// WeatherObservation is one hour of provider forecast, normalised.
// Fields not requested by a projection stay zero.
type WeatherObservation struct {
	Time  time.Time `json:"time"` // truncated to the hour, provider's local zone
	Month int       `json:"month"`
	Hour  int       `json:"hour"`

	WindSpeed              float64 `json:"wind_speed"` // m/s
	WindGust               float64 `json:"wind_gust"`  // m/s
	WindDirection          float64 `json:"wind_direction"`
	WindDirectionDeviation float64 `json:"wind_direction_deviation"` // degrees from 180, in [0,180]
	Sunshine               float64 `json:"sunshine"`                 // minutes within the hour
	AirPressure            float64 `json:"air_pressure"`             // hPa, mean sea level
	Radiation              float64 `json:"radiation"`                // W/m², direct
	AirTemperature         float64 `json:"air_temperature"`          // °C
	RelativeAirHumidity    float64 `json:"relative_air_humidity"`    // %
	Precipitation          float64 `json:"precipitation"`            // mm
}
