package contracts

import (
	"fmt"
	"strings"
	"time"
)

// GenerationType tags a site and every record derived for it
// ⭐ SSOT: 발전 유형은 여기서만 정의
type GenerationType string

const (
	Solar GenerationType = "solar"
	Wind  GenerationType = "wind"
)

// GenerationTypes lists every supported type in a stable order
var GenerationTypes = []GenerationType{Solar, Wind}

// Valid reports whether t is a known generation type
func (t GenerationType) Valid() bool {
	return t == Solar || t == Wind
}

func (t GenerationType) String() string {
	return string(t)
}

// ParseGenerationType accepts "solar" or "wind" in any case
func ParseGenerationType(s string) (GenerationType, error) {
	t := GenerationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown generation type %q (want solar or wind)", s)
	}
	return t, nil
}

// Site is a registered generation facility.
// The pipeline reads sites; their lifecycle belongs to site administration.
type Site struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Location       string         `json:"location"`
	Type           GenerationType `json:"generation_type"`
	ThresholdValue float64        `json:"threshold_value"` // energy per day, same unit as predicted generation
	Timezone       string         `json:"timezone,omitempty"`  // IANA zone of the site, optional
}

// Zone returns the configured zone of the site.
// ok is false when none is set or the name does not load.
func (s Site) Zone() (*time.Location, bool) {
	if s.Timezone == "" {
		return nil, false
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, false
	}
	return loc, true
}
