package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

const (
	sideEffectTimeout        = 10 * time.Second
	defaultSideEffectWorkers = 32
)

type effectTask struct {
	ctx  context.Context
	name string
	fn   func(ctx context.Context) error
}

// effectQueue holds the pending tasks of one ordering key. While a queue is
// present in SideEffects.queues exactly one worker drains it.
type effectQueue struct {
	pending []effectTask
}

// SideEffects runs best-effort work detached from the request that
// triggered it on a bounded worker pool. Failures are logged and never
// retried.
type SideEffects struct {
	logger  *slog.Logger
	workers int

	// poolMu guards the pool swap in Wait against concurrent submissions.
	poolMu sync.RWMutex
	pool   *pool.Pool

	queueMu sync.Mutex
	queues  map[string]*effectQueue
}

func NewSideEffects(logger *slog.Logger) *SideEffects {
	return NewSideEffectsWithLimit(logger, defaultSideEffectWorkers)
}

// NewSideEffectsWithLimit caps the number of effects running at once.
// Submissions block while the pool is full.
func NewSideEffectsWithLimit(logger *slog.Logger, workers int) *SideEffects {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	s := &SideEffects{
		logger:  logger,
		workers: workers,
		queues:  make(map[string]*effectQueue),
	}
	s.pool = s.newPool()
	return s
}

func (s *SideEffects) newPool() *pool.Pool {
	return pool.New().WithMaxGoroutines(s.workers)
}

// Go schedules fn. ctx only contributes its values; its cancellation does
// not reach fn.
func (s *SideEffects) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	task := effectTask{ctx: ctx, name: name, fn: fn}
	s.submit(func() { s.run(task) })
}

// GoOrdered schedules fn after every effect previously scheduled under the
// same key. Effects of different keys still run concurrently.
func (s *SideEffects) GoOrdered(ctx context.Context, key, name string, fn func(ctx context.Context) error) {
	task := effectTask{ctx: ctx, name: name, fn: fn}

	s.queueMu.Lock()
	if q, draining := s.queues[key]; draining {
		q.pending = append(q.pending, task)
		s.queueMu.Unlock()
		return
	}
	q := &effectQueue{}
	s.queues[key] = q
	s.queueMu.Unlock()

	s.submit(func() { s.drain(key, q, task) })
}

func (s *SideEffects) drain(key string, q *effectQueue, next effectTask) {
	for {
		s.run(next)

		s.queueMu.Lock()
		if len(q.pending) == 0 {
			delete(s.queues, key)
			s.queueMu.Unlock()
			return
		}
		next = q.pending[0]
		q.pending = q.pending[1:]
		s.queueMu.Unlock()
	}
}

func (s *SideEffects) submit(task func()) {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()
	s.pool.Go(task)
}

func (s *SideEffects) run(task effectTask) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(task.ctx), sideEffectTimeout)
	defer cancel()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = task.fn(runCtx) })

	if r := pc.Recovered(); r != nil {
		sideEffectFailures.WithLabelValues(task.name).Inc()
		s.logger.Error("side effect panicked", "effect", task.name, "panic", r.Value)
		return
	}
	if err != nil {
		sideEffectFailures.WithLabelValues(task.name).Inc()
		s.logger.Warn("side effect failed", "effect", task.name, "error", err)
	}
}

// Wait blocks until every scheduled side effect has finished. The
// runner stays usable afterwards.
func (s *SideEffects) Wait() {
	s.poolMu.Lock()
	current := s.pool
	s.pool = s.newPool()
	s.poolMu.Unlock()

	current.Wait()
}
