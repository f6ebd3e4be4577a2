package evaluator_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kiranshivaraju/llm-quality-observer/internal/notify"
	"github.com/kiranshivaraju/llm-quality-observer/internal/store"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// memStore is an in-memory store.Store. Evaluations become visible only on Commit.
type memStore struct {
	mu          sync.Mutex
	logs        []models.Log
	evaluations map[int64]*models.Evaluation
	nextID      int64

	pendingErr error
	countErr   error
	beginErr   error
	insertErr  map[int64]error
	commitErr  map[int64]error
	rollbacks  int

	insertPanics map[int64]bool
}

func newMemStore(logs ...models.Log) *memStore {
	return &memStore{
		logs:        logs,
		evaluations: map[int64]*models.Evaluation{},
		insertErr:   map[int64]error{},
		commitErr:   map[int64]error{},

		insertPanics: map[int64]bool{},
	}
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) PendingLogs(_ context.Context, limit int) ([]models.Log, error) {
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Log
	for _, l := range s.logs {
		if len(out) >= limit {
			break
		}
		if _, done := s.evaluations[l.ID]; !done {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) CountPending(context.Context) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs) - len(s.evaluations), nil
}

func (s *memStore) BeginTx(context.Context) (store.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &memTx{s: s}, nil
}

func (s *memStore) evaluated(logID int64) *models.Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluations[logID]
}

type memTx struct {
	s       *memStore
	pending *models.Evaluation
	done    bool
}

func (t *memTx) InsertEvaluation(_ context.Context, ev *models.Evaluation) error {
	if t.s.insertPanics[ev.LogID] {
		var m map[string]int
		m["boom"]++
	}
	if err := t.s.insertErr[ev.LogID]; err != nil {
		return &store.StoreError{Op: "insert evaluation", Err: err}
	}
	t.pending = ev
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.pending == nil {
		return errors.New("nothing to commit")
	}
	if err := t.s.commitErr[t.pending.LogID]; err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextID++
	t.pending.ID = t.s.nextID
	t.s.evaluations[t.pending.LogID] = t.pending
	t.done = true
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.s.mu.Lock()
	t.s.rollbacks++
	t.s.mu.Unlock()
	t.pending = nil
	return nil
}

// stubJudge returns results or errors keyed by log ID.
type stubJudge struct {
	jt      models.JudgeType
	model   string
	errs    map[int64][]error
	panics  map[int64]bool
	calls   map[int64]int
	mu      sync.Mutex
	results func(models.Log) models.EvaluationResult
}

func newStubJudge(jt models.JudgeType, model string) *stubJudge {
	return &stubJudge{
		jt:     jt,
		model:  model,
		errs:   map[int64][]error{},
		panics: map[int64]bool{},
		calls:  map[int64]int{},
		results: func(l models.Log) models.EvaluationResult {
			return models.EvaluationResult{OverallScore: 5, Label: models.LabelOK, JudgeModel: model}
		},
	}
}

func (j *stubJudge) Type() models.JudgeType { return j.jt }
func (j *stubJudge) Model() string          { return j.model }

func (j *stubJudge) Evaluate(_ context.Context, log models.Log) (models.EvaluationResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.calls[log.ID]
	j.calls[log.ID]++
	if j.panics[log.ID] {
		var scores map[string]int
		scores["overall"] = 1
	}
	if errs := j.errs[log.ID]; n < len(errs) && errs[n] != nil {
		return models.EvaluationResult{}, errs[n]
	}
	return j.results(log), nil
}

type alertCall struct {
	LogID int64
	Score int
}

type summaryCall struct {
	Evaluated  int
	JudgeType  models.JudgeType
	JudgeModel string
}

// recordingNotifier captures calls instead of delivering them.
type recordingNotifier struct {
	mu        sync.Mutex
	alerts    []alertCall
	summaries []summaryCall
}

func (n *recordingNotifier) Alert(_ context.Context, log models.Log, ev models.Evaluation, _ models.JudgeType) notify.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alertCall{LogID: log.ID, Score: ev.OverallScore})
	return notify.Outcome{Sent: true}
}

func (n *recordingNotifier) BatchSummary(_ context.Context, evaluated int, jt models.JudgeType, model string) notify.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summaryCall{Evaluated: evaluated, JudgeType: jt, JudgeModel: model})
	return notify.Outcome{Sent: true}
}

func successLog(id int64, response string) models.Log {
	status := models.LogStatusSuccess
	return models.Log{ID: id, Prompt: "prompt", Response: response, Status: &status}
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("not supported")
}
