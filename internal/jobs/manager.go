// Package jobs owns the job state machine. Every mutation goes through
// the Manager, which validates the edge against the legal transition
// set, applies it as one guarded write, and publishes the lifecycle
// event after the write commits.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/you/uvian/internal/bus"
	"github.com/you/uvian/internal/domain"
	"github.com/you/uvian/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Store is the persistence the manager needs; *storage.Store and
// *storage.MemStore both satisfy it.
type Store interface {
	Create(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, f domain.Filter, p domain.Page) ([]*domain.Job, int, error)
	UpdateStatus(ctx context.Context, id string, from domain.Status, c storage.StatusChange) (*domain.Job, error)
	Delete(ctx context.Context, id string, allowed ...domain.Status) error
	Metrics(ctx context.Context, from, to *time.Time) (*domain.JobMetrics, error)
}

// Queue hands job ids to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type Manager struct {
	store Store
	queue Queue
	bus   bus.Publisher
	log   *zap.Logger
}

func NewManager(store Store, queue Queue, b bus.Publisher, log *zap.Logger) *Manager {
	return &Manager{store: store, queue: queue, bus: b, log: log}
}

// Create persists a new queued job and pushes its id onto the work
// queue. The row is the source of truth: a failed push is logged, not
// surfaced, and the worker side tolerates ids it never received.
func (m *Manager) Create(ctx context.Context, jobType string, input json.RawMessage) (*domain.Job, error) {
	if jobType == "" {
		return nil, &domain.ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	} else if !json.Valid(input) {
		return nil, &domain.ValidationError{Field: "input", Reason: "must be valid JSON"}
	}

	now := time.Now().UTC()
	j := &domain.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    domain.Queued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, j); err != nil {
		return nil, err
	}
	m.enqueue(ctx, j.ID)
	return j, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*domain.Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, f domain.Filter, p domain.Page) (*domain.JobList, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	items, total, err := m.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Job{}
	}
	return &domain.JobList{
		Jobs:    items,
		Total:   total,
		Page:    p.Page,
		Limit:   p.Limit,
		HasMore: p.Page*p.Limit < total,
	}, nil
}

// Cancel transitions a queued or processing job to cancelled. The
// worker side observes the lifecycle event and stops cooperatively.
func (m *Manager) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	return m.transition(ctx, id, domain.Cancelled, storage.StatusChange{
		To:             domain.Cancelled,
		SetCompletedAt: true,
	})
}

// Retry moves a failed job back to queued, clearing the failure record
// and the timing fields, and re-enqueues it.
func (m *Manager) Retry(ctx context.Context, id string) (*domain.Job, error) {
	j, err := m.transition(ctx, id, domain.Queued, storage.StatusChange{
		To:         domain.Queued,
		ClearTimes: true,
		ClearError: true,
	})
	if err != nil {
		return nil, err
	}
	m.enqueue(ctx, j.ID)
	return j, nil
}

// Delete removes a job, permitted only once it is terminal: live work
// cannot be deleted out from under a worker.
func (m *Manager) Delete(ctx context.Context, id string) error {
	cur, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	return m.store.Delete(ctx, id, domain.Completed, domain.Failed, domain.Cancelled)
}

// MarkProcessing is the worker's claim: queued -> processing, setting
// startedAt. Losing the race to a cancel is the caller's no-op.
func (m *Manager) MarkProcessing(ctx context.Context, id string) (*domain.Job, error) {
	return m.transition(ctx, id, domain.Processing, storage.StatusChange{
		To:           domain.Processing,
		SetStartedAt: true,
	})
}

// MarkCompleted records worker success: processing -> completed with
// the output payload.
func (m *Manager) MarkCompleted(ctx context.Context, id string, output json.RawMessage) (*domain.Job, error) {
	return m.transition(ctx, id, domain.Completed, storage.StatusChange{
		To:             domain.Completed,
		SetCompletedAt: true,
		Output:         output,
	})
}

// MarkFailed records worker failure: processing -> failed with the
// error message.
func (m *Manager) MarkFailed(ctx context.Context, id string, errMsg string) (*domain.Job, error) {
	return m.transition(ctx, id, domain.Failed, storage.StatusChange{
		To:             domain.Failed,
		SetCompletedAt: true,
		ErrorMessage:   &errMsg,
	})
}

func (m *Manager) Metrics(ctx context.Context, from, to *time.Time) (*domain.JobMetrics, error) {
	return m.store.Metrics(ctx, from, to)
}

// transition runs the read -> edge check -> guarded write sequence. The
// edge check yields ErrInvalidTransition; a write that misses its guard
// (someone else moved the job between read and write) yields
// ErrConflict from the store.
func (m *Manager) transition(ctx context.Context, id string, to domain.Status, c storage.StatusChange) (*domain.Job, error) {
	cur, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(cur.Status, to) {
		return nil, domain.ErrInvalidTransition
	}

	j, err := m.store.UpdateStatus(ctx, id, cur.Status, c)
	if err != nil {
		return nil, err
	}
	m.publishStatus(ctx, j)
	return j, nil
}

// publishStatus emits the lifecycle event. Best-effort: the store write
// already committed, so a transport failure is logged and swallowed.
func (m *Manager) publishStatus(ctx context.Context, j *domain.Job) {
	evt := domain.JobStatusEvent{JobID: j.ID, Status: j.Status, Timestamp: j.UpdatedAt}
	topic := bus.Topic(bus.KindJob, j.ID, bus.ClassStatus)
	if err := m.bus.Publish(ctx, topic, evt); err != nil {
		m.log.Warn("publish lifecycle event",
			zap.String("job_id", j.ID), zap.String("status", string(j.Status)), zap.Error(err))
	}
}

func (m *Manager) enqueue(ctx context.Context, id string) {
	if err := m.queue.Enqueue(ctx, id); err != nil {
		m.log.Warn("enqueue job", zap.String("job_id", id), zap.Error(err))
	}
}
