package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	Queued     Status = "queued"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
	Cancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known job statuses.
func (s Status) Valid() bool {
	switch s {
	case Queued, Processing, Completed, Failed, Cancelled:
		return true
	}
	return false
}

// Terminal reports whether no further worker-driven transition is legal.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// transitions is the legal edge set. completed and cancelled have no
// outgoing edges; a failed job may only go back to queued via retry.
var transitions = map[Status][]Status{
	Queued:     {Processing, Cancelled},
	Processing: {Completed, Failed, Cancelled},
	Failed:     {Queued},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is a unit of asynchronous work tracked through a status lifecycle.
// The database row is the source of truth; everything published on the
// event bus about a job is derived from a committed row.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Status       Status          `json:"status"`
	Input        json.RawMessage `json:"input"`
	Output       json.RawMessage `json:"output"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// Filter narrows a job listing. The date range is inclusive on CreatedAt.
type Filter struct {
	Status   Status
	Type     string
	DateFrom *time.Time
	DateTo   *time.Time
}

// Page is a 1-indexed page request.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// JobList is the paginated listing response.
type JobList struct {
	Jobs    []*Job `json:"jobs"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	HasMore bool   `json:"hasMore"`
}

// JobMetrics holds per-status job counts over an optional date range.
type JobMetrics struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
