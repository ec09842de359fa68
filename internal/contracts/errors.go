package contracts

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage in errors and API responses
type Stage string

const (
	StageIngestion   Stage = "ingestion"
	StagePrediction  Stage = "prediction"
	StagePersistence Stage = "persistence"
)

// IngestionError: provider unreachable or malformed response.
// No partial weather series is ever returned alongside it.
type IngestionError struct {
	SiteID  int64
	Message string
	Err     error
}

func (e *IngestionError) Error() string { return format(StageIngestion, e.SiteID, e.Message, e.Err) }
func (e *IngestionError) Unwrap() error { return e.Err }

// PredictionError: missing model, feature contract mismatch or invalid features
type PredictionError struct {
	SiteID  int64
	Message string
	Err     error
}

func (e *PredictionError) Error() string { return format(StagePrediction, e.SiteID, e.Message, e.Err) }
func (e *PredictionError) Unwrap() error { return e.Err }

// PersistenceError: storage unreachable, constraint violation or failed commit
type PersistenceError struct {
	SiteID  int64
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return format(StagePersistence, e.SiteID, e.Message, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

func format(stage Stage, siteID int64, msg string, err error) string {
	s := fmt.Sprintf("%s failed", stage)
	if siteID != 0 {
		s = fmt.Sprintf("%s for site %d", s, siteID)
	}
	if msg != "" {
		s += ": " + msg
	}
	if err != nil {
		s += ": " + err.Error()
	}
	return s
}

// StageOf returns the stage a pipeline error belongs to
func StageOf(err error) (Stage, bool) {
	var ie *IngestionError
	var pe *PredictionError
	var se *PersistenceError
	switch {
	case errors.As(err, &ie):
		return StageIngestion, true
	case errors.As(err, &pe):
		return StagePrediction, true
	case errors.As(err, &se):
		return StagePersistence, true
	}
	return "", false
}

// ErrSiteNotFound is returned by site directories for unknown ids
var ErrSiteNotFound = errors.New("site not found")
