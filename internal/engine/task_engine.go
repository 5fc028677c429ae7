// internal/engine/task_engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/observability"
	"github.com/xkilldash9x/markasorgu/internal/protocol"
)

const (
	defaultConcurrency  = 5
	sessionCloseTimeout = 5 * time.Second
)

// -- Interfaces for Dependency Inversion --

// Session is a browser tab owned by exactly one worker.
type Session interface {
	protocol.Page
	ID() string
	// Alive reports whether the session can still be driven.
	Alive() bool
	Close(ctx context.Context) error
}

// SessionFactory opens new sessions on the shared browser process.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Runner executes a single task against a page.
type Runner interface {
	Run(ctx context.Context, page protocol.Page, task schemas.Task) (schemas.TaskResult, error)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
}

// job is a queued task together with the private channel its submitter waits on.
type job struct {
	task schemas.Task
	done chan outcome
}

type outcome struct {
	result schemas.TaskResult
	err    error
}

// TaskEngine is a fixed pool of workers, each holding one browser session for its
// lifetime. Tasks are served from a single FIFO queue.
type TaskEngine struct {
	cfg     config.EngineConfig
	factory SessionFactory
	runner  Runner
	logger  *zap.Logger
	limiter *rate.Limiter

	queue     chan *job
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// runCtx bounds task execution. It is only cancelled when Stop runs out of time.
	runCtx    context.Context
	runCancel context.CancelFunc

	// stateLock protects the running state of the engine.
	stateLock sync.RWMutex
	isRunning bool
	stopped   bool
	workers   int

	active atomic.Int32
}

// New creates a new TaskEngine. No session is opened until Start.
func New(cfg config.EngineConfig, factory SessionFactory, runner Runner, logger *zap.Logger) (*TaskEngine, error) {
	if factory == nil {
		return nil, errors.New("session factory cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = defaultConcurrency
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	e := &TaskEngine{
		cfg:     cfg,
		factory: factory,
		runner:  runner,
		logger:  logger.With(zap.String("component", "task_engine")),
		queue:   make(chan *job, cfg.QueueSize),
		closing: make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return e, nil
}

// Start opens one session per worker and launches the pool. If any session cannot be
// opened, every session opened so far is closed and ErrPoolUnavailable is returned.
func (e *TaskEngine) Start(ctx context.Context) error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	if e.isRunning {
		e.logger.Warn("TaskEngine.Start called, but engine is already running.")
		return nil
	}
	if e.stopped {
		return schemas.ErrPoolClosed
	}

	n := e.cfg.WorkerConcurrency
	e.logger.Info("Starting task engine worker pool", zap.Int("concurrency", n), zap.Int("queue_size", e.cfg.QueueSize))

	sessions := make([]Session, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			s, err := e.factory.NewSession(gctx)
			if err != nil {
				return fmt.Errorf("opening session %d: %w", i+1, err)
			}
			sessions[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.closeSessions(sessions)
		return fmt.Errorf("%w: %w", schemas.ErrPoolUnavailable, err)
	}

	e.runCtx, e.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	e.workers = n
	for i, s := range sessions {
		e.wg.Add(1)
		go e.runWorker(i+1, s)
	}
	e.isRunning = true
	observability.ActiveSessions.Set(0)
	e.logger.Info("Task engine started.", zap.Int("sessions", n))
	return nil
}

// Submit queues the task and blocks until it finishes or ctx is done. A task whose
// submitter gives up keeps running to completion inside the pool.
func (e *TaskEngine) Submit(ctx context.Context, task schemas.Task) (schemas.TaskResult, error) {
	failed := schemas.TaskResult{TaskID: task.ID, Kind: task.Kind}
	if err := task.Validate(); err != nil {
		return failed, err
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	j := &job{task: task, done: make(chan outcome, 1)}

	e.stateLock.RLock()
	if !e.isRunning {
		stopped := e.stopped
		e.stateLock.RUnlock()
		if stopped {
			return failed, schemas.ErrPoolClosed
		}
		return failed, schemas.ErrPoolUnavailable
	}
	select {
	case <-e.closing:
		e.stateLock.RUnlock()
		return failed, schemas.ErrPoolClosed
	default:
	}
	select {
	case e.queue <- j:
		observability.QueuedTasks.Set(float64(len(e.queue)))
	case <-e.closing:
		e.stateLock.RUnlock()
		return failed, schemas.ErrPoolClosed
	case <-ctx.Done():
		e.stateLock.RUnlock()
		return failed, ctx.Err()
	}
	e.stateLock.RUnlock()

	select {
	case out := <-j.done:
		return out.result, out.err
	case <-ctx.Done():
		return failed, ctx.Err()
	}
}

// Stats reports the pool size, the busy workers and the queue depth.
func (e *TaskEngine) Stats() Stats {
	e.stateLock.RLock()
	workers := e.workers
	e.stateLock.RUnlock()
	return Stats{
		Workers: workers,
		Active:  int(e.active.Load()),
		Queued:  len(e.queue),
	}
}

// Stop rejects new tasks, fails the ones still queued with ErrPoolClosed and waits for
// in-flight tasks. When ctx expires first, in-flight tasks are cancelled.
func (e *TaskEngine) Stop(ctx context.Context) error {
	// Unblock submitters waiting on a full queue before taking the write lock.
	e.closeOnce.Do(func() { close(e.closing) })

	e.stateLock.Lock()
	if !e.isRunning {
		e.stopped = true
		e.stateLock.Unlock()
		return nil
	}
	e.isRunning = false
	e.stopped = true
	close(e.queue)
	e.stateLock.Unlock()

	e.logger.Info("Stopping task engine... waiting for workers to finish.")
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("Shutdown deadline exceeded. Cancelling in-flight tasks.", zap.Error(ctx.Err()))
		err = ctx.Err()
		e.runCancel()
		<-done
	}
	e.runCancel()
	observability.QueuedTasks.Set(0)
	observability.ActiveSessions.Set(0)
	e.logger.Info("Task engine stopped gracefully.")
	return err
}

// runWorker is the main loop for a single worker goroutine.
func (e *TaskEngine) runWorker(workerID int, session Session) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started", zap.String("session_id", session.ID()))

	defer func() {
		if session != nil {
			e.closeSession(session)
		}
	}()

	for j := range e.queue {
		observability.QueuedTasks.Set(float64(len(e.queue)))
		select {
		case <-e.closing:
			j.done <- outcome{result: schemas.TaskResult{TaskID: j.task.ID, Kind: j.task.Kind}, err: schemas.ErrPoolClosed}
			continue
		default:
		}

		session = e.ensureSession(session, logger)
		if session == nil {
			j.done <- outcome{
				result: schemas.TaskResult{TaskID: j.task.ID, Kind: j.task.Kind},
				err:    fmt.Errorf("%w: no replacement session available", schemas.ErrSessionBroken),
			}
			continue
		}

		broken := e.process(j, session, logger)
		if broken {
			logger.Warn("Session broken, it will be replaced before the next task.", zap.String("session_id", session.ID()))
			e.closeSession(session)
			session = nil
		}
	}
	logger.Debug("Task queue closed and drained, worker shutting down gracefully.")
}

// ensureSession returns s when it is still usable, otherwise a fresh session.
func (e *TaskEngine) ensureSession(s Session, logger *zap.Logger) Session {
	if s != nil && s.Alive() {
		return s
	}
	if s != nil {
		e.closeSession(s)
	}
	fresh, err := e.factory.NewSession(e.runCtx)
	if err != nil {
		logger.Error("Failed to open replacement session.", zap.Error(err))
		return nil
	}
	logger.Info("Replacement session opened.", zap.String("session_id", fresh.ID()))
	return fresh
}

// process handles the execution of a single task and reports whether the session broke.
func (e *TaskEngine) process(j *job, session Session, logger *zap.Logger) bool {
	task := j.task
	tlog := observability.ForTask(logger, task)

	if e.limiter != nil {
		if err := e.limiter.Wait(e.runCtx); err != nil {
			j.done <- outcome{result: schemas.TaskResult{TaskID: task.ID, Kind: task.Kind}, err: schemas.ErrPoolClosed}
			return false
		}
	}

	e.active.Add(1)
	observability.ActiveSessions.Inc()
	tlog.Info("Processing task", zap.Duration("queued_for", time.Since(task.SubmittedAt)))

	result, err := e.safeRun(session, task, tlog)

	e.active.Add(-1)
	observability.ActiveSessions.Dec()

	kind := string(task.Kind)
	observability.TaskDuration.WithLabelValues(kind).Observe(result.Duration.Seconds())
	if result.Attempts > 0 {
		observability.TaskAttempts.WithLabelValues(kind).Observe(float64(result.Attempts))
	}
	observability.TasksTotal.WithLabelValues(kind, outcomeLabel(result, err)).Inc()

	if err != nil {
		tlog.Warn("Task failed", zap.Int("attempts", result.Attempts), zap.Error(err))
	} else {
		tlog.Info("Task completed", zap.Int("attempts", result.Attempts), zap.Duration("duration", result.Duration))
	}
	j.done <- outcome{result: result, err: err}

	return errors.Is(err, schemas.ErrSessionBroken) || !session.Alive()
}

// safeRun converts a panic inside the runner into a task error.
func (e *TaskEngine) safeRun(session Session, task schemas.Task, logger *zap.Logger) (result schemas.TaskResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = schemas.TaskResult{TaskID: task.ID, Kind: task.Kind}
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
		if result.TaskID == "" {
			result.TaskID, result.Kind = task.ID, task.Kind
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
	}()
	return e.runner.Run(e.runCtx, session, task)
}

func (e *TaskEngine) closeSession(s Session) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		e.logger.Debug("Failed to close session", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

func (e *TaskEngine) closeSessions(sessions []Session) {
	for _, s := range sessions {
		if s != nil {
			e.closeSession(s)
		}
	}
}

func outcomeLabel(result schemas.TaskResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.Detail != nil && !result.Detail.Found:
		return "not_found"
	default:
		return "ok"
	}
}
