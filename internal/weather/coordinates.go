package weather

import (
	"regexp"
	"strconv"
	"strings"
)

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultCoordinates is used whenever a location descriptor cannot be parsed
var DefaultCoordinates = Coordinates{Latitude: 23.276474, Longitude: 77.460590}

var (
	// "28.579202°N 77.631433°E", "28°N, 77°E"
	hemispherePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*°\s*([NSns])[\s,]+(\d+(?:\.\d+)?)\s*°\s*([EWew])`)
	// "23.1,-81.5", "23.1, -81.5"
	pairPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)`)
)

// ParseCoordinates resolves a free-text location descriptor.
// It never fails: when neither format matches, or the values are out of
// range, it returns DefaultCoordinates and ok=false.
func ParseCoordinates(location string) (Coordinates, bool) {
	s := strings.TrimSpace(location)

	if m := hemispherePattern.FindStringSubmatch(s); m != nil {
		lat, _ := strconv.ParseFloat(m[1], 64)
		lng, _ := strconv.ParseFloat(m[3], 64)
		if strings.EqualFold(m[2], "S") {
			lat = -lat
		}
		if strings.EqualFold(m[4], "W") {
			lng = -lng
		}
		if c := (Coordinates{lat, lng}); c.valid() {
			return c, true
		}
		return DefaultCoordinates, false
	}

	if m := pairPattern.FindStringSubmatch(s); m != nil {
		lat, _ := strconv.ParseFloat(m[1], 64)
		lng, _ := strconv.ParseFloat(m[2], 64)
		if c := (Coordinates{lat, lng}); c.valid() {
			return c, true
		}
	}

	return DefaultCoordinates, false
}

func (c Coordinates) valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
