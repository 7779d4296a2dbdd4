// Package worker claims queued jobs and drives them through the
// lifecycle. Cancellation is cooperative: the pool watches the job
// lifecycle topic and cancels the context of any running job that gets
// cancelled, and races it loses against cancel are no-ops.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/uvian/internal/bus"
	"github.com/you/uvian/internal/domain"
	"github.com/you/uvian/internal/jobs"
)

const (
	dequeueBlock = 2 * time.Second

	// Queued rows older than reconcileAge whose push was lost get
	// re-pushed. Duplicates are harmless: the guarded claim makes the
	// second pop a no-op.
	reconcileEvery = 30 * time.Second
	reconcileAge   = time.Minute
	reconcileBatch = 100
)

// Queue is the work queue as the pool sees it: claims on the way in,
// re-pushes during reconciliation.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context, block time.Duration) (string, error)
}

type Pool struct {
	queue       Queue
	mgr         *jobs.Manager
	bus         bus.Subscriber
	reg         *Registry
	concurrency int
	log         *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewPool(q Queue, mgr *jobs.Manager, b bus.Subscriber, reg *Registry, concurrency int, log *zap.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:       q,
		mgr:         mgr,
		bus:         b,
		reg:         reg,
		concurrency: concurrency,
		log:         log,
		running:     make(map[string]context.CancelFunc),
	}
}

// Run blocks until ctx is done, claiming jobs on concurrency goroutines.
func (p *Pool) Run(ctx context.Context) error {
	sub, err := p.bus.Subscribe(ctx, bus.Pattern(bus.KindJob, bus.ClassStatus), p.onStatusEvent)
	if err != nil {
		// Degraded: jobs still run, cancel just stops being cooperative.
		p.log.Warn("cancel watch unavailable", zap.Error(err))
	} else {
		defer sub.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error { return p.claimLoop(ctx) })
	}
	g.Go(func() error { return p.reconcileLoop(ctx) })
	return g.Wait()
}

func (p *Pool) reconcileLoop(ctx context.Context) error {
	tick := time.NewTicker(reconcileEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			p.reconcile(ctx)
		}
	}
}

// reconcile re-pushes queued rows old enough that their original push
// should long since have been claimed. The row is the source of truth,
// so a job whose id never reached Redis still runs.
func (p *Pool) reconcile(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-reconcileAge)
	list, err := p.mgr.List(ctx, domain.Filter{Status: domain.Queued, DateTo: &cutoff},
		domain.Page{Page: 1, Limit: reconcileBatch})
	if err != nil {
		p.log.Warn("reconcile list", zap.Error(err))
		return
	}
	for _, j := range list.Jobs {
		if err := p.queue.Enqueue(ctx, j.ID); err != nil {
			p.log.Warn("reconcile enqueue", zap.String("job_id", j.ID), zap.Error(err))
			return
		}
	}
	if len(list.Jobs) > 0 {
		p.log.Info("requeued stale jobs", zap.Int("count", len(list.Jobs)))
	}
}

func (p *Pool) claimLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := p.queue.Dequeue(ctx, dequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("dequeue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if id == "" {
			continue
		}
		p.process(ctx, id)
	}
}

func (p *Pool) process(ctx context.Context, id string) {
	job, err := p.mgr.MarkProcessing(ctx, id)
	if err != nil {
		if isLostRace(err) {
			// Cancelled, deleted, or claimed elsewhere before we got it.
			p.log.Debug("claim skipped", zap.String("job_id", id), zap.Error(err))
			return
		}
		p.log.Error("claim job", zap.String("job_id", id), zap.Error(err))
		return
	}

	h, ok := p.reg.Get(job.Type)
	if !ok {
		p.finishFailed(ctx, id, "no handler registered for type "+job.Type)
		return
	}

	jctx, cancel := context.WithCancel(ctx)
	p.track(id, cancel)
	defer func() {
		p.untrack(id)
		cancel()
	}()

	p.log.Info("job started", zap.String("job_id", id), zap.String("type", job.Type))
	out, err := h(jctx, job)
	if err != nil {
		p.finishFailed(ctx, id, err.Error())
		return
	}
	if _, err := p.mgr.MarkCompleted(ctx, id, out); err != nil && !isLostRace(err) {
		p.log.Error("mark completed", zap.String("job_id", id), zap.Error(err))
	}
}

func (p *Pool) finishFailed(ctx context.Context, id, msg string) {
	if _, err := p.mgr.MarkFailed(ctx, id, msg); err != nil && !isLostRace(err) {
		p.log.Error("mark failed", zap.String("job_id", id), zap.Error(err))
	}
}

// onStatusEvent cancels a running job's context when its lifecycle
// topic reports cancelled.
func (p *Pool) onStatusEvent(topic string, payload []byte) {
	var evt domain.JobStatusEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		p.log.Warn("bad lifecycle event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if evt.Status != domain.Cancelled {
		return
	}
	p.mu.Lock()
	cancel, ok := p.running[evt.JobID]
	p.mu.Unlock()
	if ok {
		p.log.Info("cancelling running job", zap.String("job_id", evt.JobID))
		cancel()
	}
}

func (p *Pool) track(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.running[id] = cancel
	p.mu.Unlock()
}

func (p *Pool) untrack(id string) {
	p.mu.Lock()
	delete(p.running, id)
	p.mu.Unlock()
}

// isLostRace reports the transition outcomes a worker treats as no-ops:
// the job moved (or vanished) under us, and whoever moved it won.
func isLostRace(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrNotFound)
}
