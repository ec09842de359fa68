package contracts

import (
	"encoding/json"
	"time"
)

// DateLayout is the civil date format used in keys, queries and JSON
const DateLayout = "2006-01-02"

// HourlyPrediction is the model output for one observation
type HourlyPrediction struct {
	SiteID              int64           `json:"site_id"`
	Timestamp           time.Time       `json:"timestamp"`
	FeatureSnapshot     json.RawMessage `json:"feature_snapshot"`
	PredictedGeneration float64         `json:"predicted_generation"`
}

// DailyPrediction is the aggregate of one calendar date
type DailyPrediction struct {
	Date                     time.Time `json:"date"` // midnight in the source zone
	TotalPredictedGeneration float64   `json:"total_predicted_generation"`
	BelowThreshold           bool      `json:"below_threshold"`
}

// HourlyRecord is a stored hourly row
type HourlyRecord struct {
	SiteID              int64           `json:"site_id"`
	Timestamp           time.Time       `json:"timestamp"`
	FeatureSnapshot     json.RawMessage `json:"feature_snapshot"`
	PredictedGeneration float64         `json:"predicted_generation"`
	ActualGeneration    *float64        `json:"actual_generation,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DailyRecord is a stored daily row
type DailyRecord struct {
	SiteID                   int64     `json:"site_id"`
	Date                     time.Time `json:"date"`
	TotalPredictedGeneration float64   `json:"total_predicted_generation"`
	TotalActualGeneration    *float64  `json:"total_actual_generation,omitempty"`
	RecommendationStatus     bool      `json:"recommendation_status"`
	RecommendationMessage    *string   `json:"recommendation_message,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// PersistCounts reports what one persist call changed
type PersistCounts struct {
	HourlyCreated int `json:"hourly_created"`
	HourlyUpdated int `json:"hourly_updated"`
	DailyCreated  int `json:"daily_created"`
	DailyUpdated  int `json:"daily_updated"`
}

// Created returns the number of newly inserted rows
func (c PersistCounts) Created() int {
	return c.HourlyCreated + c.DailyCreated
}

// Updated returns the number of rows overwritten in place
func (c PersistCounts) Updated() int {
	return c.HourlyUpdated + c.DailyUpdated
}

// CivilDate returns the calendar date of t in its own location
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// BelowThresholdMessage is stored on days whose total is under the site threshold
const BelowThresholdMessage = "Energy generation below threshold"

// RecommendationMessage returns BelowThresholdMessage for flagged days, nil otherwise
func (d DailyPrediction) RecommendationMessage() *string {
	if !d.BelowThreshold {
		return nil
	}
	msg := BelowThresholdMessage
	return &msg
}
