package queue

import (
	"context"
	"time"

	r "github.com/redis/go-redis/v9"
)

const workKey = "queue:jobs"

// RedisQ is the work queue between the API and the worker pool. It holds
// only job ids; the row in Postgres is the source of truth, so a lost
// push is recoverable and a popped id for a job that was cancelled in
// the meantime simply fails its claim.
type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

func (q *RedisQ) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, workKey, jobID).Err()
}

// Dequeue blocks up to block for the next job id. Returns "" with a nil
// error when the wait times out.
func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, block, workKey).Result()
	if err == r.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) == 2 {
		return res[1], nil
	}
	return "", nil
}
