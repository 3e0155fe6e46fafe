package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/usecase"
)

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	id, err := s.runs.Trigger()
	if err != nil {
		if errors.Is(err, usecase.ErrRunInProgress) {
			s.respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to trigger run", zap.Error(err))
		s.respondWithError(w, http.StatusServiceUnavailable, "Could not start run")
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondRunError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, state)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.runs.Latest()
	if err != nil {
		s.respondRunError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, state)
}

func (s *Server) respondRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, usecase.ErrRunNotFound) {
		s.respondWithError(w, http.StatusNotFound, "Run not found")
		return
	}
	s.logger.Error("failed to get run", zap.Error(err))
	s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve run")
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "healthy"}
	healthy := true
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !healthy {
		healthStatus["status"] = "unhealthy"
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
