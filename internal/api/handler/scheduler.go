package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/llm-quality-observer/internal/api/response"
	"github.com/kiranshivaraju/llm-quality-observer/internal/evaluator"
	"github.com/kiranshivaraju/llm-quality-observer/internal/scheduler"
)

// SchedulerStater reports scheduler state.
type SchedulerStater interface {
	State() scheduler.State
}

// ReportSource returns the most recent batch report, or nil if none ran yet.
type ReportSource interface {
	LastReport(ctx context.Context) (*evaluator.BatchReport, error)
}

// BatchReportFinder looks up a retained batch report by id.
type BatchReportFinder interface {
	Report(ctx context.Context, batchID uuid.UUID) (*evaluator.BatchReport, error)
}

// BatchTrigger runs one batch outside the tick schedule.
type BatchTrigger interface {
	TriggerNow(ctx context.Context) (*evaluator.BatchReport, error)
}

type schedulerStatus struct {
	Scheduler  scheduler.State        `json:"scheduler"`
	LastReport *evaluator.BatchReport `json:"last_batch"`
}

// NewSchedulerStatusHandler returns an http.HandlerFunc for GET /api/v1/scheduler.
func NewSchedulerStatusHandler(s SchedulerStater, reports ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := schedulerStatus{Scheduler: s.State()}

		report, err := reports.LastReport(r.Context())
		if err != nil {
			// A broken cache only hides the last report.
			clog.FromContext(r.Context()).With("error", err).Warn("loading last batch report failed")
		}
		status.LastReport = report

		response.JSON(w, status)
	}
}

// NewSchedulerRunHandler returns an http.HandlerFunc for POST /api/v1/scheduler/run.
// The batch uses the scheduler's judge and batch size and shares its
// single-flight guard.
func NewSchedulerRunHandler(trigger BatchTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := trigger.TriggerNow(r.Context())
		switch {
		case errors.Is(err, scheduler.ErrBatchInFlight):
			response.Error(w, http.StatusConflict, "BATCH_IN_FLIGHT",
				"A batch evaluation is already in progress", nil)
		case errors.Is(err, scheduler.ErrStopped):
			response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
				"The scheduler is shutting down", nil)
		case err != nil:
			response.Error(w, http.StatusInternalServerError, "BATCH_FAILED",
				"Batch evaluation failed", map[string]string{"error": err.Error()})
		default:
			response.JSON(w, report)
		}
	}
}

// NewBatchReportHandler returns an http.HandlerFunc for
// GET /api/v1/scheduler/batches/{batchID}.
func NewBatchReportHandler(reports BatchReportFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "batch id must be a UUID", nil)
			return
		}

		report, err := reports.Report(r.Context(), batchID)
		switch {
		case errors.Is(err, evaluator.ErrReportNotFound):
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND",
				"No retained report for this batch", map[string]string{"batch_id": batchID.String()})
		case err != nil:
			clog.FromContext(r.Context()).With("batch_id", batchID, "error", err).Error("loading batch report failed")
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		default:
			response.JSON(w, report)
		}
	}
}
