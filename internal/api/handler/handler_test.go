package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/llm-quality-observer/internal/api/handler"
	"github.com/kiranshivaraju/llm-quality-observer/internal/evaluator"
	"github.com/kiranshivaraju/llm-quality-observer/internal/judge"
	"github.com/kiranshivaraju/llm-quality-observer/internal/scheduler"
	"github.com/kiranshivaraju/llm-quality-observer/internal/store"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock evaluator ---

type mockEvaluator struct {
	gotLimit int
	gotJudge models.JudgeType
	result   *evaluator.OnceResult
	err      error
}

func (m *mockEvaluator) EvaluateOnce(_ context.Context, limit int, jt models.JudgeType) (*evaluator.OnceResult, error) {
	m.gotLimit, m.gotJudge = limit, jt
	return m.result, m.err
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func post(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ========================================
// Evaluate-once
// ========================================

func TestEvaluateOnce_Defaults(t *testing.T) {
	m := &mockEvaluator{result: &evaluator.OnceResult{Evaluated: 2, JudgeType: models.JudgeTypeRule}}
	w := post(handler.NewEvaluateOnceHandler(m, models.JudgeTypeRule), "/api/v1/evaluate-once")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, m.gotLimit)
	assert.Equal(t, models.JudgeTypeRule, m.gotJudge)

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["evaluated"])
	assert.Equal(t, "rule", data["judge_type"])
}

func TestEvaluateOnce_QueryParams(t *testing.T) {
	m := &mockEvaluator{result: &evaluator.OnceResult{}}
	w := post(handler.NewEvaluateOnceHandler(m, models.JudgeTypeRule), "/api/v1/evaluate-once?limit=100&judge=LLM")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, m.gotLimit)
	assert.Equal(t, models.JudgeTypeLLM, m.gotJudge)
}

func TestEvaluateOnce_NoPendingMessage(t *testing.T) {
	m := &mockEvaluator{result: &evaluator.OnceResult{JudgeType: models.JudgeTypeRule, Message: evaluator.NoPendingMessage}}
	w := post(handler.NewEvaluateOnceHandler(m, models.JudgeTypeRule), "/api/v1/evaluate-once")

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["evaluated"])
	assert.Equal(t, "No pending logs to evaluate.", data["message"])
}

func TestEvaluateOnce_InvalidParams(t *testing.T) {
	for _, target := range []string{
		"/api/v1/evaluate-once?limit=0",
		"/api/v1/evaluate-once?limit=101",
		"/api/v1/evaluate-once?limit=abc",
		"/api/v1/evaluate-once?judge=gpt",
	} {
		t.Run(target, func(t *testing.T) {
			m := &mockEvaluator{}
			w := post(handler.NewEvaluateOnceHandler(m, models.JudgeTypeRule), target)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, "INVALID_REQUEST", errObj["code"])
			assert.Zero(t, m.gotLimit, "service must not be called")
		})
	}
}

func TestEvaluateOnce_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad response", &judge.Error{Kind: judge.KindBadResponse, Message: "Invalid JSON from judge model"}, http.StatusBadGateway, "JUDGE_BAD_RESPONSE"},
		{"quota", &judge.Error{Kind: judge.KindQuotaExceeded, Message: "rate limited"}, http.StatusTooManyRequests, "JUDGE_QUOTA_EXCEEDED"},
		{"auth", &judge.Error{Kind: judge.KindAuthFailure, Message: "invalid api key"}, http.StatusUnauthorized, "JUDGE_AUTH_FAILURE"},
		{"unavailable", &judge.Error{Kind: judge.KindUnavailable, Message: "timeout"}, http.StatusBadGateway, "JUDGE_UNAVAILABLE"},
		{"provider", &judge.Error{Kind: judge.KindProviderError, Message: "500"}, http.StatusBadGateway, "JUDGE_PROVIDER_ERROR"},
		{"store", &store.StoreError{Op: "commit", Err: errors.New("conn reset")}, http.StatusInternalServerError, "STORE_ERROR"},
		{"panic", fmt.Errorf("judge %w: %v", evaluator.ErrPanicked, "nil map"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unconfigured judge", errors.New(`judge "llm" is not configured`), http.StatusBadRequest, "JUDGE_NOT_CONFIGURED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockEvaluator{result: &evaluator.OnceResult{Evaluated: 3}, err: tt.err}
			w := post(handler.NewEvaluateOnceHandler(m, models.JudgeTypeLLM), "/api/v1/evaluate-once")

			assert.Equal(t, tt.status, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.code, errObj["code"])
			details := errObj["details"].(map[string]any)
			assert.Equal(t, float64(3), details["evaluated"])
		})
	}
}

func TestEvaluateOnce_BadResponseIncludesSnippet(t *testing.T) {
	m := &mockEvaluator{err: &judge.Error{Kind: judge.KindBadResponse, Message: "Invalid JSON from judge model", Snippet: "not valid json"}}
	w := post(handler.NewEvaluateOnceHandler(m, models.JudgeTypeLLM), "/api/v1/evaluate-once")

	errObj := decode(t, w)["error"].(map[string]any)
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "not valid json", details["raw_snippet"])
	assert.Equal(t, float64(0), details["evaluated"])
}

// ========================================
// Scheduler status
// ========================================

type stubStater struct{ state scheduler.State }

func (s stubStater) State() scheduler.State { return s.state }

type stubReports struct {
	report *evaluator.BatchReport
	err    error
}

func (s stubReports) LastReport(context.Context) (*evaluator.BatchReport, error) { return s.report, s.err }

func TestSchedulerStatus(t *testing.T) {
	st := stubStater{state: scheduler.State{Enabled: true, Running: true, Interval: "1h0m0s", BatchSize: 10, JudgeType: models.JudgeTypeRule}}
	rep := stubReports{report: &evaluator.BatchReport{Selected: 4, Evaluated: 3, Failed: 1, JudgeType: models.JudgeTypeRule}}

	req := httptest.NewRequest("GET", "/api/v1/scheduler", nil)
	w := httptest.NewRecorder()
	handler.NewSchedulerStatusHandler(st, rep).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	sched := data["scheduler"].(map[string]any)
	assert.Equal(t, true, sched["running"])
	assert.Equal(t, float64(10), sched["batch_size"])
	last := data["last_batch"].(map[string]any)
	assert.Equal(t, float64(3), last["evaluated"])
}

func TestSchedulerStatus_ReportErrorStillOK(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/scheduler", nil)
	w := httptest.NewRecorder()
	handler.NewSchedulerStatusHandler(stubStater{}, stubReports{err: errors.New("redis down")}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Nil(t, data["last_batch"])
}

type stubTrigger struct {
	report *evaluator.BatchReport
	err    error
	calls  int
}

func (s *stubTrigger) TriggerNow(context.Context) (*evaluator.BatchReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSchedulerRun_ReturnsReport(t *testing.T) {
	trig := &stubTrigger{report: &evaluator.BatchReport{
		BatchID:   uuid.New(),
		JudgeType: models.JudgeTypeRule,
		Selected:  2,
		Evaluated: 2,
	}}
	w := post(handler.NewSchedulerRunHandler(trig), "/api/v1/scheduler/run")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, trig.calls)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, trig.report.BatchID.String(), data["batch_id"])
	assert.Equal(t, float64(2), data["evaluated"])
}

func TestSchedulerRun_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"in flight", scheduler.ErrBatchInFlight, http.StatusConflict, "BATCH_IN_FLIGHT"},
		{"stopped", scheduler.ErrStopped, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"runner failed", errors.New("select pending logs: connection refused"), http.StatusInternalServerError, "BATCH_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(handler.NewSchedulerRunHandler(&stubTrigger{err: tt.err}), "/api/v1/scheduler/run")

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

type stubFinder struct {
	reports map[uuid.UUID]*evaluator.BatchReport
	err     error
}

func (s stubFinder) Report(_ context.Context, id uuid.UUID) (*evaluator.BatchReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.reports[id]; ok {
		return r, nil
	}
	return nil, evaluator.ErrReportNotFound
}

func getBatch(f handler.BatchReportFinder, id string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/v1/scheduler/batches/{batchID}", handler.NewBatchReportHandler(f))
	req := httptest.NewRequest("GET", "/api/v1/scheduler/batches/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBatchReport_Found(t *testing.T) {
	id := uuid.New()
	f := stubFinder{reports: map[uuid.UUID]*evaluator.BatchReport{
		id: {BatchID: id, Selected: 3, Evaluated: 2, Failed: 1,
			Failures: []evaluator.Failure{{LogID: 9, Kind: "timeout", Error: "judge timed out"}}},
	}}

	w := getBatch(f, id.String())

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, id.String(), data["batch_id"])
	failures := data["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "timeout", failures[0].(map[string]any)["kind"])
}

func TestBatchReport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		finder stubFinder
		id     string
		status int
		code   string
	}{
		{"malformed id", stubFinder{}, "not-a-uuid", http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown batch", stubFinder{}, uuid.NewString(), http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"cache failure", stubFinder{err: errors.New("redis: i/o timeout")}, uuid.NewString(), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getBatch(tt.finder, tt.id)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

// ========================================
// Health
// ========================================

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		db       handler.Pinger
		cache    handler.Pinger
		status   int
		database string
		cacheSt  string
	}{
		{"all ok", pinger{}, pinger{}, http.StatusOK, "ok", "ok"},
		{"no cache", pinger{}, nil, http.StatusOK, "ok", "disabled"},
		{"cache down", pinger{}, pinger{err: errors.New("refused")}, http.StatusOK, "ok", "unreachable"},
		{"db down", pinger{err: errors.New("refused")}, nil, http.StatusServiceUnavailable, "unreachable", "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/health", nil)
			w := httptest.NewRecorder()
			handler.NewHealthHandler(tt.db, tt.cache, "test").ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			data := decode(t, w)["data"].(map[string]any)
			assert.Equal(t, tt.database, data["database"])
			assert.Equal(t, tt.cacheSt, data["cache"])
			assert.Equal(t, "test", data["version"])
		})
	}
}

func TestHealth_RespectsTimeout(t *testing.T) {
	slow := pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	start := time.Now()
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	handler.NewHealthHandler(slow, nil, "test").ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
