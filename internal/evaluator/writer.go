package evaluator

import (
	"context"
	"errors"

	"github.com/chainguard-dev/clog"
	"github.com/kiranshivaraju/llm-quality-observer/internal/store"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// Writer persists one evaluation per transaction so that each log's result
// survives independently of the rest of its batch.
type Writer struct {
	store store.Store
}

func NewWriter(s store.Store) *Writer {
	return &Writer{store: s}
}

// Write inserts the evaluation for log and commits. On failure the
// transaction is rolled back, including when a panic unwinds through Write,
// and a *store.StoreError is returned.
func (w *Writer) Write(ctx context.Context, log models.Log, res models.EvaluationResult) (*models.Evaluation, error) {
	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return nil, asStoreError("begin transaction", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			clog.FromContext(ctx).With("log_id", log.ID, "error", rbErr).Warn("rollback failed")
		}
	}()

	ev := models.NewEvaluation(log.ID, res)
	if err := tx.InsertEvaluation(ctx, ev); err != nil {
		return nil, asStoreError("insert evaluation", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, asStoreError("commit", err)
	}
	committed = true
	return ev, nil
}

func asStoreError(op string, err error) error {
	var se *store.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &store.StoreError{Op: op, Err: err}
}
