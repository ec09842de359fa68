package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/renewcast/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondPipelineError maps the stage taxonomy to a status code
// ingestion → 502, prediction → 500, persistence → 503
func respondPipelineError(w http.ResponseWriter, err error) {
	status, stage := StatusFor(err)
	body := map[string]string{"error": err.Error()}
	if stage != "" {
		body["stage"] = stage
	}
	respondJSON(w, status, body)
}

// StatusFor returns the HTTP status and stage name of a pipeline error
func StatusFor(err error) (int, string) {
	if errors.Is(err, contracts.ErrSiteNotFound) {
		return http.StatusNotFound, ""
	}
	if stage, ok := contracts.StageOf(err); ok {
		switch stage {
		case contracts.StageIngestion:
			return http.StatusBadGateway, string(stage)
		case contracts.StagePersistence:
			return http.StatusServiceUnavailable, string(stage)
		default:
			return http.StatusInternalServerError, string(stage)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ""
	}
	return http.StatusInternalServerError, ""
}
