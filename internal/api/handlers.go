package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/ingest"
	"github.com/hkzhang08/gradcafe-ingest/internal/storage"
	"github.com/hkzhang08/gradcafe-ingest/internal/task"
)

// handleIngestRequest kicks off a full scrape-to-store run in the background.
// A second trigger while a run is active gets a 409.
func (s *Server) handleIngestRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Start(); err != nil {
		if errors.Is(err, ingest.ErrRunInProgress) {
			s.respondWithError(w, http.StatusConflict, "An ingestion run is already in progress")
			return
		}
		s.respondWithError(w, http.StatusInternalServerError, "Could not start ingestion run")
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Ingestion run started"})
}

// handleStatusRequest reports the pipeline's run state and insert count.
func (s *Server) handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.pipeline.Status())
}

// handleTaskRequest processes one queue-style task message synchronously.
func (s *Server) handleTaskRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	inserted, err := s.dispatcher.Handle(r.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrRunInProgress):
			s.respondWithError(w, http.StatusConflict, "An ingestion run is already in progress")
		case errors.Is(err, task.ErrUnsupportedKind):
			s.respondWithError(w, http.StatusBadRequest, "Unsupported task kind")
		case errors.Is(err, storage.ErrSchemaMissing):
			s.respondWithError(w, http.StatusInternalServerError, storage.ErrSchemaMissing.Error())
		default:
			s.logger.Error("task processing failed", zap.Error(err))
			s.respondWithError(w, http.StatusInternalServerError, "Task processing failed")
		}
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if s.pgStore != nil {
		if err := s.pgStore.Ping(ctx); err != nil {
			healthStatus["postgres"] = "unhealthy"
			s.logger.Error("health check failed for postgres", zap.Error(err))
		} else {
			healthStatus["postgres"] = "healthy"
		}
	}

	if s.redisStore != nil {
		if err := s.redisStore.Ping(ctx); err != nil {
			healthStatus["redis"] = "unhealthy"
			s.logger.Error("health check failed for redis", zap.Error(err))
		} else {
			healthStatus["redis"] = "healthy"
		}
	}

	for _, state := range healthStatus {
		if state != "healthy" {
			s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
			return
		}
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
