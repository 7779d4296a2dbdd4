package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/you/uvian/internal/domain"
)

type createJobRequest struct {
	Type  string          `json:"type"`
	Input json.RawMessage `json:"input"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &domain.ValidationError{Field: "body", Reason: "must be a JSON object"})
		return
	}
	j, err := s.manager.Create(r.Context(), req.Type, req.Input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, j)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := domain.Filter{Type: q.Get("type")}
	if st := q.Get("status"); st != "" {
		status := domain.Status(st)
		if !status.Valid() {
			s.writeError(w, &domain.ValidationError{Field: "status", Reason: "unknown status"})
			return
		}
		f.Status = status
	}
	var err error
	if f.DateFrom, err = parseDate(q.Get("date_from")); err != nil {
		s.writeError(w, &domain.ValidationError{Field: "date_from", Reason: "must be RFC3339 or YYYY-MM-DD"})
		return
	}
	if f.DateTo, err = parseDate(q.Get("date_to")); err != nil {
		s.writeError(w, &domain.ValidationError{Field: "date_to", Reason: "must be RFC3339 or YYYY-MM-DD"})
		return
	}

	p := domain.Page{
		Page:  intParam(q.Get("page"), 1),
		Limit: intParam(q.Get("limit"), 20),
	}

	list, err := s.manager.List(r.Context(), f, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.manager.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.manager.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) jobMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("date_from"))
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "date_from", Reason: "must be RFC3339 or YYYY-MM-DD"})
		return
	}
	to, err := parseDate(q.Get("date_to"))
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "date_to", Reason: "must be RFC3339 or YYYY-MM-DD"})
		return
	}

	m, err := s.manager.Metrics(r.Context(), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
