package weather

import (
	"math"

	"github.com/wonny/renewcast/internal/contracts"
)

// OptimalHeading is the turbine heading wind direction deviation is measured from
const OptimalHeading = 180.0

type variable struct {
	name   string
	assign func(obs *contracts.WeatherObservation, v float64)
}

// Projection selects the hourly provider variables for one generation type
// and maps them onto WeatherObservation fields.
type Projection struct {
	Type      contracts.GenerationType
	variables []variable
	params    map[string]string
}

// Variables returns the provider variable names in request order
func (p Projection) Variables() []string {
	names := make([]string, len(p.variables))
	for i, v := range p.variables {
		names[i] = v.name
	}
	return names
}

var (
	temperature = variable{"temperature_2m", func(o *contracts.WeatherObservation, v float64) { o.AirTemperature = v }}
	humidity    = variable{"relative_humidity_2m", func(o *contracts.WeatherObservation, v float64) { o.RelativeAirHumidity = v }}
	pressure    = variable{"pressure_msl", func(o *contracts.WeatherObservation, v float64) { o.AirPressure = v }}
	windSpeed   = variable{"windspeed_10m", func(o *contracts.WeatherObservation, v float64) { o.WindSpeed = v }}
)

// SolarProjection: temperature, humidity, pressure, direct radiation,
// wind speed and sunshine duration (provider seconds converted to minutes).
var SolarProjection = Projection{
	Type: contracts.Solar,
	variables: []variable{
		temperature,
		humidity,
		pressure,
		{"direct_radiation", func(o *contracts.WeatherObservation, v float64) { o.Radiation = v }},
		windSpeed,
		{"sunshine_duration", func(o *contracts.WeatherObservation, v float64) { o.Sunshine = v / 60 }},
	},
}

// WindProjection adds direction, gusts and precipitation, with wind speeds in m/s.
var WindProjection = Projection{
	Type: contracts.Wind,
	variables: []variable{
		temperature,
		humidity,
		pressure,
		windSpeed,
		{"winddirection_10m", func(o *contracts.WeatherObservation, v float64) {
			o.WindDirection = v
			o.WindDirectionDeviation = DirectionDeviation(v)
		}},
		{"windgusts_10m", func(o *contracts.WeatherObservation, v float64) { o.WindGust = v }},
		{"precipitation", func(o *contracts.WeatherObservation, v float64) { o.Precipitation = v }},
	},
	params: map[string]string{"wind_speed_unit": "ms"},
}

// ProjectionFor returns the projection of a generation type
func ProjectionFor(t contracts.GenerationType) (Projection, bool) {
	switch t {
	case contracts.Solar:
		return SolarProjection, true
	case contracts.Wind:
		return WindProjection, true
	}
	return Projection{}, false
}

// DirectionDeviation is the angular distance of direction from OptimalHeading,
// folded into [0,180].
func DirectionDeviation(direction float64) float64 {
	d := math.Mod(math.Abs(direction-OptimalHeading), 360)
	return math.Min(d, 360-d)
}
