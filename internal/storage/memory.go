package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/you/uvian/internal/domain"
)

// MemStore is an in-memory job store with the same guarded-transition
// semantics as the Postgres store. Used by tests and local development.
type MemStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemStore) Create(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemStore) List(_ context.Context, f domain.Filter, p domain.Page) ([]*domain.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Job
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.DateFrom != nil && j.CreatedAt.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && j.CreatedAt.After(*f.DateTo) {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	off := p.Offset()
	if off >= total {
		return nil, total, nil
	}
	end := off + p.Limit
	if end > total {
		end = total
	}
	return matched[off:end], total, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id string, from domain.Status, c StatusChange) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status != from {
		return nil, domain.ErrConflict
	}

	now := time.Now().UTC()
	j.Status = c.To
	j.UpdatedAt = now
	if c.SetStartedAt {
		j.StartedAt = &now
	}
	if c.SetCompletedAt {
		j.CompletedAt = &now
	}
	if c.ClearTimes {
		j.StartedAt = nil
		j.CompletedAt = nil
	}
	if c.Output != nil {
		j.Output = c.Output
	}
	if c.ClearError {
		j.ErrorMessage = nil
	} else if c.ErrorMessage != nil {
		j.ErrorMessage = c.ErrorMessage
	}

	cp := *j
	return &cp, nil
}

func (s *MemStore) Delete(_ context.Context, id string, allowed ...domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, st := range allowed {
		if j.Status == st {
			delete(s.jobs, id)
			return nil
		}
	}
	return domain.ErrConflict
}

func (s *MemStore) Metrics(_ context.Context, from, to *time.Time) (*domain.JobMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &domain.JobMetrics{}
	for _, j := range s.jobs {
		if from != nil && j.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && j.CreatedAt.After(*to) {
			continue
		}
		m.Total++
		switch j.Status {
		case domain.Queued:
			m.Queued++
		case domain.Processing:
			m.Processing++
		case domain.Completed:
			m.Completed++
		case domain.Failed:
			m.Failed++
		case domain.Cancelled:
			m.Cancelled++
		}
	}
	return m, nil
}
