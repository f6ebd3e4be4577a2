package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/llm-quality-observer/internal/api/response"
	"github.com/kiranshivaraju/llm-quality-observer/internal/evaluator"
	"github.com/kiranshivaraju/llm-quality-observer/internal/judge"
	"github.com/kiranshivaraju/llm-quality-observer/internal/store"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

const (
	defaultLimit = 5
	maxLimit     = 100
)

// OnceEvaluator defines the interface the handler depends on.
type OnceEvaluator interface {
	EvaluateOnce(ctx context.Context, limit int, judgeType models.JudgeType) (*evaluator.OnceResult, error)
}

// NewEvaluateOnceHandler returns an http.HandlerFunc for POST /api/v1/evaluate-once.
func NewEvaluateOnceHandler(svc OnceEvaluator, defaultJudge models.JudgeType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := defaultLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer between 1 and 100", nil)
				return
			}
			limit = n
		}

		judgeType := defaultJudge
		if raw := q.Get("judge"); raw != "" {
			jt, err := models.ParseJudgeType(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "judge must be one of rule, llm", nil)
				return
			}
			judgeType = jt
		}

		result, err := svc.EvaluateOnce(r.Context(), limit, judgeType)
		if err != nil {
			evaluated := 0
			if result != nil {
				evaluated = result.Evaluated
			}
			writeEvaluationError(w, err, evaluated)
			return
		}

		response.JSON(w, result)
	}
}

type evaluationErrorDetails struct {
	Evaluated int    `json:"evaluated"`
	Kind      string `json:"kind,omitempty"`
	Snippet   string `json:"raw_snippet,omitempty"`
}

func writeEvaluationError(w http.ResponseWriter, err error, evaluated int) {
	details := evaluationErrorDetails{Evaluated: evaluated}

	var je *judge.Error
	if errors.As(err, &je) {
		details.Kind = string(je.Kind)
		details.Snippet = je.Snippet
		status, code := judgeErrorStatus(je.Kind)
		response.Error(w, status, code, je.Message, details)
		return
	}

	var se *store.StoreError
	if errors.As(err, &se) {
		details.Kind = "store_error"
		response.Error(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read or write evaluations", details)
		return
	}

	if errors.Is(err, evaluator.ErrPanicked) {
		details.Kind = "panic"
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Evaluation failed unexpectedly", details)
		return
	}

	// The only remaining source is an unconfigured judge type.
	response.Error(w, http.StatusBadRequest, "JUDGE_NOT_CONFIGURED", err.Error(), details)
}

func judgeErrorStatus(kind judge.Kind) (int, string) {
	switch kind {
	case judge.KindQuotaExceeded:
		return http.StatusTooManyRequests, "JUDGE_QUOTA_EXCEEDED"
	case judge.KindAuthFailure:
		return http.StatusUnauthorized, "JUDGE_AUTH_FAILURE"
	case judge.KindUnavailable:
		return http.StatusBadGateway, "JUDGE_UNAVAILABLE"
	case judge.KindBadResponse:
		return http.StatusBadGateway, "JUDGE_BAD_RESPONSE"
	default:
		return http.StatusBadGateway, "JUDGE_PROVIDER_ERROR"
	}
}
