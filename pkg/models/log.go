package models

import "time"

// LogStatusSuccess is the only status eligible for evaluation.
const LogStatusSuccess = "success"

// Log is one recorded LLM interaction. Rows are written by the gateway and
// are read-only to the evaluator.
type Log struct {
	ID           int64     `db:"id"            json:"id"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UserID       *string   `db:"user_id"       json:"user_id,omitempty"`
	Prompt       string    `db:"prompt"        json:"prompt"`
	Response     string    `db:"response"      json:"response"`
	ModelVersion *string   `db:"model_version" json:"model_version,omitempty"`
	LatencyMS    *float64  `db:"latency_ms"    json:"latency_ms,omitempty"`
	Status       *string   `db:"status"        json:"status,omitempty"`
}
