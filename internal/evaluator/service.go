// Package evaluator runs the judge-write-alert pipeline over pending logs,
// either as a scheduled batch or on demand.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/llm-quality-observer/internal/cache"
	"github.com/kiranshivaraju/llm-quality-observer/internal/judge"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
	"github.com/kiranshivaraju/llm-quality-observer/internal/notify"
	"github.com/kiranshivaraju/llm-quality-observer/internal/store"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// ReportTTL is how long batch reports are kept in the cache.
const ReportTTL = 24 * time.Hour

// NoPendingMessage is returned by EvaluateOnce when nothing is waiting.
const NoPendingMessage = "No pending logs to evaluate."

var (
	// ErrPanicked marks a log whose judge or write panicked.
	ErrPanicked       = errors.New("panicked")
	// ErrReportNotFound is returned by Report for an unknown or expired batch.
	ErrReportNotFound = errors.New("batch report not found")
)

// Notifier delivers alerts and batch summaries. *notify.Notifier satisfies it.
type Notifier interface {
	Alert(ctx context.Context, log models.Log, ev models.Evaluation, judgeType models.JudgeType) notify.Outcome
	BatchSummary(ctx context.Context, evaluated int, judgeType models.JudgeType, judgeModel string) notify.Outcome
}

// Result is the outcome for one log. Exactly one of Evaluation and Err is set.
type Result struct {
	LogID      int64
	Evaluation *models.Evaluation
	Err        error
}

// Failure is the serializable form of a failed Result.
type Failure struct {
	LogID int64  `json:"log_id"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// BatchReport summarizes one scheduled batch.
type BatchReport struct {
	BatchID    uuid.UUID        `json:"batch_id"`
	JudgeType  models.JudgeType `json:"judge_type"`
	JudgeModel string           `json:"judge_model"`
	Selected   int              `json:"selected"`
	Evaluated  int              `json:"evaluated"`
	Failed     int              `json:"failed"`
	Results    []Result         `json:"-"`
	Failures   []Failure        `json:"failures,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// OnceResult is returned by EvaluateOnce.
type OnceResult struct {
	Evaluated  int              `json:"evaluated"`
	JudgeType  models.JudgeType `json:"judge_type"`
	JudgeModel string           `json:"judge_model,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithReportCache stores batch reports in c. Pass a nil interface to disable.
func WithReportCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRetry retries transient judge failures.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// Service evaluates pending logs.
type Service struct {
	store    store.Store
	writer   *Writer
	judges   judge.Registry
	notifier Notifier
	metrics  *metrics.Metrics
	cache    cache.Cache
	retry    RetryConfig

	mu   sync.RWMutex
	last *BatchReport
}

func NewService(st store.Store, judges judge.Registry, n Notifier, m *metrics.Metrics, opts ...Option) (*Service, error) {
	s := &Service{
		store:    st,
		writer:   NewWriter(st),
		judges:   judges,
		notifier: n,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	return s, nil
}

// RunBatch evaluates up to limit pending logs with the judge for judgeType.
// A failing log is recorded in the report and the batch moves on; only a
// failure to select logs aborts the batch.
func (s *Service) RunBatch(ctx context.Context, judgeType models.JudgeType, limit int) (*BatchReport, error) {
	j, err := s.judges.Get(judgeType)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{
		BatchID:    uuid.New(),
		JudgeType:  judgeType,
		JudgeModel: j.Model(),
		StartedAt:  time.Now().UTC(),
	}
	logger := clog.FromContext(ctx).With("batch_id", report.BatchID.String(), "judge_type", judgeType.String())
	ctx = clog.WithLogger(ctx, logger)

	logs, err := s.store.PendingLogs(ctx, limit)
	if err != nil {
		logger.With("error", err).Error("selecting pending logs failed")
		return nil, err
	}
	report.Selected = len(logs)

	for _, log := range logs {
		res := s.evaluateLog(ctx, j, log)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			report.Failed++
			report.Failures = append(report.Failures, failureOf(res))
			logger.With("log_id", log.ID, "error", res.Err).Error("evaluation failed, continuing batch")
			continue
		}
		report.Evaluated++
	}
	report.FinishedAt = time.Now().UTC()

	if report.Evaluated > 0 {
		s.metrics.RecordBatch(judgeType.String(), report.Evaluated)
		if s.notifier != nil {
			s.notifier.BatchSummary(ctx, report.Evaluated, judgeType, report.JudgeModel)
		}
	}
	s.refreshPending(ctx)
	s.saveReport(ctx, report)

	logger.With("evaluated", report.Evaluated, "selected", report.Selected, "failed", report.Failed).
		Info("batch evaluation completed")
	return report, nil
}

// EvaluateOnce evaluates up to limit pending logs and stops at the first
// failure. Evaluations committed before the failure are kept and counted in
// the returned result, which is non-nil whenever logs were selected.
func (s *Service) EvaluateOnce(ctx context.Context, limit int, judgeType models.JudgeType) (*OnceResult, error) {
	j, err := s.judges.Get(judgeType)
	if err != nil {
		return nil, err
	}
	out := &OnceResult{JudgeType: judgeType, JudgeModel: j.Model()}

	logs, err := s.store.PendingLogs(ctx, limit)
	if err != nil {
		return out, err
	}
	if len(logs) == 0 {
		out.Message = NoPendingMessage
		return out, nil
	}

	defer s.refreshPending(ctx)
	for _, log := range logs {
		res := s.evaluateLog(ctx, j, log)
		if res.Err != nil {
			clog.FromContext(ctx).With("log_id", log.ID, "evaluated", out.Evaluated, "error", res.Err).
				Error("on-demand evaluation aborted")
			return out, res.Err
		}
		out.Evaluated++
	}
	return out, nil
}

// LastReport returns the most recent batch report. The in-memory copy wins;
// the cache is consulted after a restart.
func (s *Service) LastReport(ctx context.Context) (*BatchReport, error) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		return last, nil
	}
	if s.cache == nil {
		return nil, nil
	}

	var report BatchReport
	found, err := cache.GetJSON(ctx, s.cache, cache.LastBatchKey, &report)
	if errors.Is(err, cache.ErrCorrupt) {
		clog.FromContext(ctx).With("error", err).Warn("dropped unreadable batch report")
		return nil, nil
	}
	if err != nil || !found {
		return nil, err
	}
	return &report, nil
}

// Report returns the batch report with the given id while it is retained.
func (s *Service) Report(ctx context.Context, batchID uuid.UUID) (*BatchReport, error) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil && last.BatchID == batchID {
		return last, nil
	}
	if s.cache == nil {
		return nil, ErrReportNotFound
	}

	var report BatchReport
	found, err := cache.GetJSON(ctx, s.cache, cache.BatchReportKey(batchID), &report)
	switch {
	case errors.Is(err, cache.ErrCorrupt):
		clog.FromContext(ctx).With("batch_id", batchID, "error", err).Warn("dropped unreadable batch report")
		return nil, ErrReportNotFound
	case err != nil:
		return nil, fmt.Errorf("read batch report %s: %w", batchID, err)
	case !found:
		return nil, ErrReportNotFound
	}
	return &report, nil
}

func (s *Service) evaluateLog(ctx context.Context, j judge.Judge, log models.Log) (result Result) {
	start := time.Now()
	judgeType := j.Type().String()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordEvaluation(judgeType, metrics.StatusError, time.Since(start), nil)
			s.metrics.RecordRecoveredPanic(metrics.ComponentEvaluation)
			clog.FromContext(ctx).With("log_id", log.ID, "panic", fmt.Sprintf("%v", r)).Error("evaluation panicked")
			result = Result{LogID: log.ID, Err: fmt.Errorf("judge %w: %v", ErrPanicked, r)}
		}
	}()

	res, err := retryWithBackoff(ctx, s.retry, "judge.Evaluate", judge.Retryable, func() (models.EvaluationResult, error) {
		return j.Evaluate(ctx, log)
	})
	if err != nil {
		s.metrics.RecordEvaluation(judgeType, metrics.StatusError, time.Since(start), nil)
		return Result{LogID: log.ID, Err: err}
	}

	ev, err := s.writer.Write(ctx, log, res)
	if err != nil {
		s.metrics.RecordEvaluation(judgeType, metrics.StatusError, time.Since(start), nil)
		return Result{LogID: log.ID, Err: err}
	}

	s.metrics.RecordEvaluation(judgeType, metrics.StatusSuccess, time.Since(start), &metrics.Scores{
		Overall:              ev.OverallScore,
		InstructionFollowing: ev.ScoreInstructionFollowing,
		Truthfulness:         ev.ScoreTruthfulness,
	})
	if s.notifier != nil {
		s.notifier.Alert(ctx, log, *ev, j.Type())
	}
	return Result{LogID: log.ID, Evaluation: ev}
}

func (s *Service) refreshPending(ctx context.Context) {
	n, err := s.store.CountPending(ctx)
	if err != nil {
		clog.FromContext(ctx).With("error", err).Warn("counting pending logs failed")
		return
	}
	s.metrics.SetPendingLogs(n)
}

func (s *Service) saveReport(ctx context.Context, report *BatchReport) {
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	logger := clog.FromContext(ctx)
	if err := cache.SetJSON(ctx, s.cache, cache.LastBatchKey, report, ReportTTL); err != nil {
		logger.With("error", err).Warn("caching batch report failed")
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cache.BatchReportKey(report.BatchID), report, ReportTTL); err != nil {
		logger.With("error", err).Warn("caching batch report failed")
	}
}

func failureOf(res Result) Failure {
	f := Failure{LogID: res.LogID, Error: res.Err.Error()}
	var se *store.StoreError
	switch kind, ok := judge.KindOf(res.Err); {
	case ok:
		f.Kind = string(kind)
	case errors.As(res.Err, &se):
		f.Kind = "store_error"
	case errors.Is(res.Err, ErrPanicked):
		f.Kind = "panic"
	default:
		f.Kind = "unknown"
	}
	return f
}
