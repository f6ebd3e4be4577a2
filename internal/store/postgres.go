package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Pending logs ---

const pendingLogsQuery = `
SELECT l.id, l.created_at, l.user_id, l.prompt, l.response, l.model_version, l.latency_ms, l.status
FROM llm_logs l
WHERE l.status = $1
  AND NOT EXISTS (SELECT 1 FROM llm_evaluations e WHERE e.log_id = l.id)
ORDER BY l.created_at ASC, l.id ASC
LIMIT $2`

func (s *PostgresStore) PendingLogs(ctx context.Context, limit int) ([]models.Log, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, pendingLogsQuery, models.LogStatusSuccess, limit)
	if err != nil {
		return nil, wrap("select pending logs", err)
	}
	defer rows.Close()

	var logs []models.Log
	for rows.Next() {
		var l models.Log
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.UserID, &l.Prompt, &l.Response,
			&l.ModelVersion, &l.LatencyMS, &l.Status); err != nil {
			return nil, wrap("scan pending log", err)
		}
		logs = append(logs, l)
	}
	return logs, wrap("select pending logs", rows.Err())
}

func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM llm_logs l
		 WHERE l.status = $1
		   AND NOT EXISTS (SELECT 1 FROM llm_evaluations e WHERE e.log_id = l.id)`,
		models.LogStatusSuccess,
	).Scan(&n)
	if err != nil {
		return 0, wrap("count pending logs", err)
	}
	return n, nil
}

// --- Evaluations ---

func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertEvaluation(ctx context.Context, ev *models.Evaluation) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO llm_evaluations
		   (log_id, overall_score, score_instruction_following, score_truthfulness,
		    is_flagged, label, judge_model, comment, raw_judge_response)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		ev.LogID, ev.OverallScore, ev.ScoreInstructionFollowing, ev.ScoreTruthfulness,
		ev.IsFlagged, ev.Label, ev.JudgeModel, ev.Comment, ev.RawJudgeResponse,
	).Scan(&ev.ID, &ev.CreatedAt)
	return wrap("insert evaluation", err)
}

func (t *pgTx) Commit(ctx context.Context) error {
	return wrap("commit", t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return wrap("rollback", err)
}
