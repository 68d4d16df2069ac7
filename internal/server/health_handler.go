package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"dealfx/internal/service"
	"dealfx/internal/storage"
	"dealfx/internal/version"
)

type dbHealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Schema     string `json:"schema"`
	InsertTest string `json:"insert_test"`
	RequestID  string `json:"request_id,omitempty"`
}

// handleDBHealth inserts a probe row inside a rolled-back transaction to
// verify connectivity and write access.
func handleDBHealth(health storage.HealthChecker, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID(r.Context())

		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, service.CodeValidation, "method not allowed", reqID)
			return
		}
		if health == nil {
			writeError(w, http.StatusInternalServerError, service.CodeStorage, "database not configured", reqID)
			return
		}

		report, err := health.HealthProbe(r.Context())
		if err != nil {
			logger.Error().Err(err).Str("request_id", reqID).Msg("database health check failed")
			writeError(w, http.StatusInternalServerError, service.CodeStorage, "database health check failed", reqID)
			return
		}

		writeJSON(w, http.StatusOK, dbHealthResponse{
			Status:     "ok",
			Database:   report.Database,
			Schema:     report.Schema,
			InsertTest: "ok_rolled_back",
			RequestID:  reqID,
		})
	}
}

type livenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func handleLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, livenessResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Version:   version.Version,
		})
	}
}
