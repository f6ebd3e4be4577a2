// Package metrics exposes the evaluator's Prometheus instruments. All
// recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llm_evaluator"

// Outcome label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// NewRegistry creates a registry. When collectProcessMetrics is true the Go
// runtime and process collectors are registered too.
func NewRegistry(collectProcessMetrics bool) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	if collectProcessMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

type Metrics struct {
	evaluations          *prometheus.CounterVec
	evaluationDuration   *prometheus.HistogramVec
	evaluationScores     *prometheus.HistogramVec
	batchRuns            *prometheus.CounterVec
	batchLogsProcessed   prometheus.Histogram
	notificationsSent    *prometheus.CounterVec
	lowQualityAlerts     *prometheus.CounterVec
	schedulerRuns        *prometheus.CounterVec
	schedulerTicksSkip   prometheus.Counter
	pendingLogs          prometheus.Gauge
	judgeRequests        *prometheus.CounterVec
	judgeRequestDuration *prometheus.HistogramVec
	panicsRecovered      *prometheus.CounterVec
	appInfo              *prometheus.GaugeVec
}

// New registers every instrument with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of evaluations performed",
		}, []string{"judge_type", "status"}),
		evaluationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent judging and persisting one log",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"judge_type"}),
		evaluationScores: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_scores",
			Help:      "Distribution of evaluation scores",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"judge_type", "score_type"}),
		batchRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_evaluations_total",
			Help:      "Total number of batch evaluations that processed at least one log",
		}, []string{"judge_type"}),
		batchLogsProcessed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_logs_processed",
			Help:      "Number of logs evaluated per batch",
			Buckets:   []float64{1, 5, 10, 20, 50, 100},
		}),
		notificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total notification delivery attempts",
		}, []string{"channel", "type", "status"}),
		lowQualityAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_quality_alerts_total",
			Help:      "Total evaluations scored below the alert threshold",
		}, []string{"judge_type"}),
		schedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Total scheduled batch runs by outcome",
		}, []string{"status"}),
		schedulerTicksSkip: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_skipped_total",
			Help:      "Ticks ignored because a batch was already in flight",
		}),
		pendingLogs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_logs",
			Help:      "Successful logs still awaiting evaluation",
		}),
		judgeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_judge_requests_total",
			Help:      "Total requests sent to the judge model",
		}, []string{"model", "status"}),
		judgeRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_judge_request_duration_seconds",
			Help:      "Latency of judge model requests",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		panicsRecovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Panics caught and recovered by component",
		}, []string{"component"}),
		appInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_info",
			Help:      "Build and runtime information",
		}, []string{"version", "env"}),
	}
}

// Scores carries the values observed into the score histogram.
type Scores struct {
	Overall              int
	InstructionFollowing *int
	Truthfulness         *int
}

func (m *Metrics) RecordEvaluation(judgeType, status string, d time.Duration, s *Scores) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(judgeType, status).Inc()
	m.evaluationDuration.WithLabelValues(judgeType).Observe(d.Seconds())
	if s == nil {
		return
	}
	m.evaluationScores.WithLabelValues(judgeType, "overall").Observe(float64(s.Overall))
	if s.InstructionFollowing != nil {
		m.evaluationScores.WithLabelValues(judgeType, "instruction_following").Observe(float64(*s.InstructionFollowing))
	}
	if s.Truthfulness != nil {
		m.evaluationScores.WithLabelValues(judgeType, "truthfulness").Observe(float64(*s.Truthfulness))
	}
}

func (m *Metrics) RecordBatch(judgeType string, evaluated int) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(judgeType).Inc()
	m.batchLogsProcessed.Observe(float64(evaluated))
}

func (m *Metrics) RecordNotification(channel, kind, status string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(channel, kind, status).Inc()
}

func (m *Metrics) RecordLowQualityAlert(judgeType string) {
	if m == nil {
		return
	}
	m.lowQualityAlerts.WithLabelValues(judgeType).Inc()
}

func (m *Metrics) RecordSchedulerRun(status string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordSkippedTick() {
	if m == nil {
		return
	}
	m.schedulerTicksSkip.Inc()
}

func (m *Metrics) SetPendingLogs(n int) {
	if m == nil {
		return
	}
	m.pendingLogs.Set(float64(n))
}

func (m *Metrics) RecordJudgeRequest(model, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.judgeRequests.WithLabelValues(model, status).Inc()
	m.judgeRequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

// Component label values for RecordRecoveredPanic.
const (
	ComponentHTTP       = "http"
	ComponentScheduler  = "scheduler"
	ComponentEvaluation = "evaluation"
)

func (m *Metrics) RecordRecoveredPanic(component string) {
	if m == nil {
		return
	}
	m.panicsRecovered.WithLabelValues(component).Inc()
}

func (m *Metrics) SetAppInfo(version, env string) {
	if m == nil {
		return
	}
	m.appInfo.WithLabelValues(version, env).Set(1)
}
