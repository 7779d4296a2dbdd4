package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/uvian/internal/domain"
)

// StatusChange describes the field writes that accompany a status
// transition. Every transition is applied as a single guarded UPDATE so
// the expected-prior-status check and the field writes are atomic.
type StatusChange struct {
	To             domain.Status
	SetStartedAt   bool
	SetCompletedAt bool
	ClearTimes     bool // retry: null out started_at and completed_at
	ClearError     bool
	Output         []byte  // set when non-nil
	ErrorMessage   *string // set when non-nil
}

const jobColumns = `id, type, status, input, output, error_message,
	created_at, updated_at, started_at, completed_at`

// Store persists jobs in Postgres (source of truth).
type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

func (s *Store) Create(ctx context.Context, j *domain.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `insert into jobs(
id, type, status, input, created_at, updated_at
) values ($1,$2,$3,$4,$5,$6)`,
		j.ID, j.Type, j.Status, j.Input, j.CreatedAt, j.UpdatedAt,
	)
	return errors.Wrap(err, "insert job")
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `select `+jobColumns+` from jobs where id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return j, nil
}

func (s *Store) List(ctx context.Context, f domain.Filter, p domain.Page) ([]*domain.Job, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRow(ctx, `select count(*) from jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count jobs")
	}

	args = append(args, p.Limit, p.Offset())
	q := fmt.Sprintf(`select %s from jobs%s order by created_at desc limit $%d offset $%d`,
		jobColumns, where, len(args)-1, len(args))
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan job")
		}
		out = append(out, j)
	}
	return out, total, errors.Wrap(rows.Err(), "list jobs")
}

// UpdateStatus applies a guarded status transition: the row is written
// only if its current status still equals from. A missed guard is
// ErrConflict when the row exists and ErrNotFound when it does not.
func (s *Store) UpdateStatus(ctx context.Context, id string, from domain.Status, c StatusChange) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `update jobs set
  status = $3,
  updated_at = now(),
  started_at = case when $4 then now() when $5 then null else started_at end,
  completed_at = case when $6 then now() when $5 then null else completed_at end,
  output = coalesce($7, output),
  error_message = case when $8 then null else coalesce($9, error_message) end
where id = $1 and status = $2
returning `+jobColumns,
		id, from, c.To,
		c.SetStartedAt, c.ClearTimes, c.SetCompletedAt,
		c.Output, c.ClearError, c.ErrorMessage,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missReason(ctx, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update job status")
	}
	return j, nil
}

// Delete removes the row only while its status is one of allowed.
func (s *Store) Delete(ctx context.Context, id string, allowed ...domain.Status) error {
	states := make([]string, len(allowed))
	for i, st := range allowed {
		states[i] = string(st)
	}
	tag, err := s.db.Exec(ctx, `delete from jobs where id = $1 and status = any($2)`, id, states)
	if err != nil {
		return errors.Wrap(err, "delete job")
	}
	if tag.RowsAffected() == 0 {
		return s.missReason(ctx, id)
	}
	return nil
}

func (s *Store) Metrics(ctx context.Context, from, to *time.Time) (*domain.JobMetrics, error) {
	var conds []string
	var args []any
	if from != nil {
		args = append(args, *from)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}
	rows, err := s.db.Query(ctx, `select status, count(*) from jobs`+where+` group by status`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "job metrics")
	}
	defer rows.Close()

	m := &domain.JobMetrics{}
	for rows.Next() {
		var st domain.Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, errors.Wrap(err, "scan metrics")
		}
		m.Total += n
		switch st {
		case domain.Queued:
			m.Queued = n
		case domain.Processing:
			m.Processing = n
		case domain.Completed:
			m.Completed = n
		case domain.Failed:
			m.Failed = n
		case domain.Cancelled:
			m.Cancelled = n
		}
	}
	return m, errors.Wrap(rows.Err(), "job metrics")
}

// missReason disambiguates a guarded write that touched zero rows.
func (s *Store) missReason(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `select exists(select 1 from jobs where id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrap(err, "check job exists")
	}
	if exists {
		return domain.ErrConflict
	}
	return domain.ErrNotFound
}

func buildWhere(f domain.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Type, &j.Status, &j.Input, &j.Output, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
