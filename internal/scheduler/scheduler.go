// Package scheduler runs evaluation batches on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/kiranshivaraju/llm-quality-observer/internal/config"
	"github.com/kiranshivaraju/llm-quality-observer/internal/evaluator"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

var (
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNotRunning     = errors.New("scheduler is not running")
	ErrBatchInFlight  = errors.New("a batch evaluation is already in progress")
	ErrStopped        = errors.New("scheduler has been stopped")
)

// Runner executes one batch. *evaluator.Service satisfies it.
type Runner interface {
	RunBatch(ctx context.Context, judgeType models.JudgeType, limit int) (*evaluator.BatchReport, error)
}

// State is a point-in-time view of the scheduler.
type State struct {
	Enabled   bool             `json:"enabled"`
	Running   bool             `json:"running"`
	InFlight  bool             `json:"in_flight"`
	Interval  string           `json:"interval"`
	BatchSize int              `json:"batch_size"`
	JudgeType models.JudgeType `json:"judge_type"`
	LastRunAt *time.Time       `json:"last_run_at,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// Scheduler triggers Runner.RunBatch every interval. At most one batch runs
// at a time; ticks that arrive while a batch is in flight are dropped.
type Scheduler struct {
	cfg      config.SchedulerConfig
	interval time.Duration
	runner   Runner
	metrics  *metrics.Metrics

	busy  atomic.Bool
	batch sync.WaitGroup

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   bool
	lastRunAt *time.Time
	lastError string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the tick interval derived from the config.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

func New(cfg config.SchedulerConfig, runner Runner, m *metrics.Metrics, opts ...Option) *Scheduler {
	s := &Scheduler{cfg: cfg, interval: cfg.Interval(), runner: runner, metrics: m}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the ticker loop. It returns immediately. When automatic
// evaluation is disabled Start logs and does nothing. Cancelling ctx ends the
// loop; Start may then be called again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = false
	logger := clog.FromContext(ctx)
	if !s.cfg.Enabled {
		logger.Info("automatic evaluation disabled, scheduler not started")
		return nil
	}
	if s.loopAlive() {
		return ErrAlreadyRunning
	}
	if s.cancel != nil {
		s.cancel()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	logger.With("interval", s.interval.String(),
		"batch_size", s.cfg.BatchSize,
		"judge_type", s.cfg.JudgeType.String(),
	).Info("scheduler started")
	return nil
}

// Stop ends the ticker loop and waits for an in-flight batch, scheduled or
// triggered, to finish or for ctx to expire, whichever comes first. No batch
// starts after Stop until the next Start. Stop returns ErrNotRunning when the
// loop was never started.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.stopped = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	idle := make(chan struct{})
	go func() {
		s.batch.Wait()
		close(idle)
	}()

	select {
	case <-idle:
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight batch: %w", ctx.Err())
	}
	if cancel == nil {
		return ErrNotRunning
	}
	clog.FromContext(ctx).Info("scheduler stopped")
	return nil
}

// TriggerNow runs one batch synchronously under the same single-flight
// guard as scheduled ticks. It works whether or not the loop is running,
// but not after Stop.
func (s *Scheduler) TriggerNow(ctx context.Context) (*evaluator.BatchReport, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()
	return s.execute(ctx)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Enabled:   s.cfg.Enabled,
		Running:   s.loopAlive(),
		InFlight:  s.busy.Load(),
		Interval:  s.interval.String(),
		BatchSize: s.cfg.BatchSize,
		JudgeType: s.cfg.JudgeType,
		LastError: s.lastError,
	}
	if s.lastRunAt != nil {
		t := *s.lastRunAt
		st.LastRunAt = &t
	}
	return st
}

// loopAlive reports whether the ticker loop goroutine is still running.
// Callers hold s.mu.
func (s *Scheduler) loopAlive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches a batch without blocking the loop. The batch runs on a
// context detached from loop cancellation so Stop lets it finish.
func (s *Scheduler) tick(ctx context.Context) {
	switch err := s.begin(); {
	case errors.Is(err, ErrBatchInFlight):
		s.metrics.RecordSkippedTick()
		clog.FromContext(ctx).Warn("previous batch still running, skipping tick")
		return
	case err != nil:
		return
	}
	go func() {
		defer s.end()
		_, _ = s.execute(context.WithoutCancel(ctx))
	}()
}

// begin claims the single batch slot. The stopped check and batch.Add share
// s.mu with Stop so no batch is added once Stop has started waiting.
func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBatchInFlight
	}
	s.batch.Add(1)
	return nil
}

func (s *Scheduler) end() {
	s.busy.Store(false)
	s.batch.Done()
}

func (s *Scheduler) execute(ctx context.Context) (report *evaluator.BatchReport, err error) {
	logger := clog.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			report, err = nil, fmt.Errorf("batch panicked: %v", r)
			s.metrics.RecordRecoveredPanic(metrics.ComponentScheduler)
			logger.With("panic", fmt.Sprintf("%v", r)).Error("scheduled batch panicked")
		}
		s.finish(err)
	}()

	report, err = s.runner.RunBatch(ctx, s.cfg.JudgeType, s.cfg.BatchSize)
	if err != nil {
		logger.With("error", err).Error("scheduled batch failed")
		return nil, err
	}
	if report.Selected == 0 {
		logger.Debug("no pending logs")
	}
	return report, nil
}

func (s *Scheduler) finish(err error) {
	status := metrics.StatusSuccess
	now := time.Now().UTC()

	s.mu.Lock()
	s.lastRunAt = &now
	s.lastError = ""
	if err != nil {
		status = metrics.StatusError
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	s.metrics.RecordSchedulerRun(status)
}
