// Package orchestrator runs media jobs: a bounded queue feeding a pool of
// workers that dispatch each job to the handler for its kind.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/sessions"
)

const pausedSettingKey = "scheduler.paused"

// Handler executes one job kind. It returns the result descriptor on
// success; the scheduler owns the terminal transition either way.
type Handler interface {
	Handle(ctx context.Context, run *Run) (map[string]any, error)
}

type HandlerFunc func(ctx context.Context, run *Run) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, run *Run) (map[string]any, error) {
	return f(ctx, run)
}

// StateStore persists small scheduler settings across restarts.
type StateStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

type SchedulerOptions struct {
	Workers   int
	QueueSize int
	State     StateStore
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Paused    bool  `json:"paused"`
	Running   bool  `json:"running"`
}

type Scheduler struct {
	store    *jobs.Store
	bus      *events.Bus
	sessions *sessions.Manager
	logger   *slog.Logger
	state    StateStore
	workers  int

	queue    chan string
	handlers map[jobs.Kind]Handler

	claimedMu sync.Mutex
	claimed   map[string]struct{}

	pauseMu sync.Mutex
	resumed chan struct{}
	paused  atomic.Bool

	running   atomic.Bool
	stopped   atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

func NewScheduler(store *jobs.Store, bus *events.Bus, sess *sessions.Manager, logger *slog.Logger, opts SchedulerOptions) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	resumed := make(chan struct{})
	close(resumed)
	return &Scheduler{
		store:    store,
		bus:      bus,
		sessions: sess,
		logger:   logger,
		state:    opts.State,
		workers:  opts.Workers,
		queue:    make(chan string, opts.QueueSize),
		handlers: make(map[jobs.Kind]Handler),
		claimed:  make(map[string]struct{}),
		resumed:  resumed,
		stop:     make(chan struct{}),
	}
}

// Register binds a handler to a job kind. Call before Start.
func (s *Scheduler) Register(kind jobs.Kind, h Handler) {
	s.handlers[kind] = h
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	s.restorePause(ctx)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.logger.Info("scheduler started", "workers", s.workers, "queue_size", cap(s.queue))
}

// Stop prevents further enqueues and waits for in-flight handlers to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stop)
	})
	s.wg.Wait()
	s.running.Store(false)
	s.logger.Info("scheduler stopped")
}

// Enqueue adds a job id to the queue without blocking.
func (s *Scheduler) Enqueue(id string) error {
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	select {
	case s.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	if !s.paused.Load() {
		s.resumed = make(chan struct{})
		s.paused.Store(true)
	}
	s.pauseMu.Unlock()
	s.persistPause(true)
	s.logger.Info("scheduler paused")
}

func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	if s.paused.Load() {
		s.paused.Store(false)
		close(s.resumed)
	}
	s.pauseMu.Unlock()
	s.persistPause(false)
	s.logger.Info("scheduler resumed")
}

func (s *Scheduler) IsPaused() bool {
	return s.paused.Load()
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Workers:   s.workers,
		Queued:    len(s.queue),
		Active:    s.active.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Paused:    s.paused.Load(),
		Running:   s.running.Load(),
	}
}

func (s *Scheduler) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	logger := s.logger.With("worker", n)

	for {
		if !s.waitResumed(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case id := <-s.queue:
			// A pause may have landed while this worker waited on the queue.
			if !s.waitResumed(ctx) {
				return
			}
			s.active.Add(1)
			s.execute(ctx, logger, id)
			s.active.Add(-1)
		}
	}
}

// waitResumed blocks while the scheduler is paused. It returns false when
// the worker should exit.
func (s *Scheduler) waitResumed(ctx context.Context) bool {
	s.pauseMu.Lock()
	ch := s.resumed
	s.pauseMu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	}
}

func (s *Scheduler) execute(ctx context.Context, logger *slog.Logger, id string) {
	if !s.claim(id) {
		logger.Warn("job already dispatched, dropping duplicate", "job_id", id)
		return
	}
	defer s.release(id)

	job, err := s.store.Get(id)
	if err != nil {
		logger.Warn("dequeued unknown job", "job_id", id)
		return
	}
	if job.Status != jobs.StatusQueued {
		logger.Warn("job is not queued, dropping duplicate", "job_id", id, "status", job.Status)
		return
	}

	logger = logger.With("job_id", id, "kind", job.Kind)
	run := newRun(job, s.store, s.bus, s.sessions, logger)

	handler, ok := s.handlers[job.Kind]
	if !ok {
		s.failed.Add(1)
		run.fail(fmt.Errorf("unknown job kind: %s", job.Kind))
		return
	}
	if !run.begin() {
		logger.Warn("job is not queued, skipping", "status", job.Status)
		return
	}

	result, err := s.invoke(ctx, handler, run)
	if err != nil {
		s.failed.Add(1)
		run.fail(err)
	} else {
		run.finish(result)
	}

	if snap, err := s.store.Get(id); err == nil && !snap.Status.IsTerminal() {
		s.failed.Add(1)
		run.fail(errors.New("handler returned without terminal state"))
	}
	s.processed.Add(1)
}

func (s *Scheduler) invoke(ctx context.Context, h Handler, run *Run) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			run.logger.Error("handler panicked", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return h.Handle(ctx, run)
}

func (s *Scheduler) claim(id string) bool {
	s.claimedMu.Lock()
	defer s.claimedMu.Unlock()
	if _, ok := s.claimed[id]; ok {
		return false
	}
	s.claimed[id] = struct{}{}
	return true
}

// release forgets an in-flight claim. A later dequeue of the same id is
// rejected by the queued-status check instead.
func (s *Scheduler) release(id string) {
	s.claimedMu.Lock()
	delete(s.claimed, id)
	s.claimedMu.Unlock()
}

func (s *Scheduler) restorePause(ctx context.Context) {
	if s.state == nil {
		return
	}
	v, ok, err := s.state.GetSetting(ctx, pausedSettingKey)
	if err != nil {
		s.logger.Warn("failed to read scheduler state", "error", err)
		return
	}
	if ok && v == "true" {
		s.Pause()
	}
}

func (s *Scheduler) persistPause(paused bool) {
	if s.state == nil {
		return
	}
	value := "false"
	if paused {
		value = "true"
	}
	if err := s.state.SetSetting(context.Background(), pausedSettingKey, value); err != nil {
		s.logger.Warn("failed to persist scheduler state", "error", err)
	}
}
