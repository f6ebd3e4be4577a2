package store

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// PendingLogs returns up to limit successful logs with no evaluation,
	// oldest first. A limit of zero or less returns nothing.
	PendingLogs(ctx context.Context, limit int) ([]models.Log, error)
	// CountPending reports how many logs are still awaiting evaluation.
	CountPending(ctx context.Context) (int, error)

	// BeginTx opens a unit of work for writing evaluations.
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a single evaluation write transaction. Exactly one of Commit or
// Rollback must be called; Rollback after Commit is a no-op.
type Tx interface {
	// InsertEvaluation persists ev and fills in its ID and CreatedAt.
	InsertEvaluation(ctx context.Context, ev *models.Evaluation) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// StoreError reports a failed storage operation. Anything that reaches the
// database and fails is surfaced as a *StoreError.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
