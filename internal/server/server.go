// Package server exposes the REST surface and the realtime channel.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/you/uvian/internal/domain"
	"github.com/you/uvian/internal/jobs"
	"github.com/you/uvian/internal/ws"
)

type Server struct {
	manager *jobs.Manager
	hub     *ws.Hub
	log     *zap.Logger
}

func New(manager *jobs.Manager, hub *ws.Hub, log *zap.Logger) *Server {
	return &Server{manager: manager, hub: hub, log: log}
}

func (s *Server) Routes() http.Handler {
	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID)
	rtr.Use(middleware.RealIP)
	rtr.Use(requestLogger(s.log))
	rtr.Use(middleware.Recoverer)

	rtr.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.createJob)
		r.Get("/", s.listJobs)
		r.Get("/metrics", s.jobMetrics)
		r.Get("/{id}", s.getJob)
		r.Post("/{id}/cancel", s.cancelJob)
		r.Post("/{id}/retry", s.retryJob)
		r.Delete("/{id}", s.deleteJob)
	})

	rtr.Get("/ws", s.handleWS)
	return rtr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the domain taxonomy onto HTTP codes: validation 400,
// unknown id 404, illegal transition or lost race 409.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		s.writeJSON(w, http.StatusConflict, errorBody{Error: "invalid state transition"})
	case errors.Is(err, domain.ErrConflict):
		s.writeJSON(w, http.StatusConflict, errorBody{Error: "job changed concurrently, refetch and retry"})
	default:
		s.log.Error("request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
