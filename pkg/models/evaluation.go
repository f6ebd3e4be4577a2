package models

import (
	"fmt"
	"strings"
	"time"
)

// Score bounds shared by every judge.
const (
	MinScore = 1
	MaxScore = 5
)

// Labels assigned by judges.
const (
	LabelOK        = "ok"
	LabelTooShort  = "too_short"
	LabelErrorLike = "error_like"
	LabelLLMJudge  = "llm-judge"
)

// JudgeType selects which judge scores a batch.
type JudgeType string

const (
	JudgeTypeRule JudgeType = "rule"
	JudgeTypeLLM  JudgeType = "llm"
)

// ParseJudgeType converts a user supplied string into a JudgeType.
func ParseJudgeType(s string) (JudgeType, error) {
	switch JudgeType(strings.ToLower(strings.TrimSpace(s))) {
	case JudgeTypeRule:
		return JudgeTypeRule, nil
	case JudgeTypeLLM:
		return JudgeTypeLLM, nil
	default:
		return "", fmt.Errorf("unknown judge type %q: must be one of rule, llm", s)
	}
}

// UnmarshalText lets configuration loaders decode a JudgeType directly.
func (t *JudgeType) UnmarshalText(b []byte) error {
	parsed, err := ParseJudgeType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t JudgeType) String() string { return string(t) }

// EvaluationResult is what a judge produces for one log, before persistence.
type EvaluationResult struct {
	OverallScore              int
	ScoreInstructionFollowing *int
	ScoreTruthfulness         *int
	IsFlagged                 bool
	Label                     string
	JudgeModel                string
	Comment                   string
	RawJudgeResponse          string
}

// Evaluation is a persisted quality judgment. At most one is expected per
// log; ID and CreatedAt are assigned by the database.
type Evaluation struct {
	ID                        int64     `db:"id"                          json:"id"`
	CreatedAt                 time.Time `db:"created_at"                  json:"created_at"`
	LogID                     int64     `db:"log_id"                      json:"log_id"`
	OverallScore              int       `db:"overall_score"               json:"overall_score"`
	ScoreInstructionFollowing *int      `db:"score_instruction_following" json:"score_instruction_following,omitempty"`
	ScoreTruthfulness         *int      `db:"score_truthfulness"          json:"score_truthfulness,omitempty"`
	IsFlagged                 bool      `db:"is_flagged"                  json:"is_flagged"`
	Label                     string    `db:"label"                       json:"label"`
	JudgeModel                string    `db:"judge_model"                 json:"judge_model"`
	Comment                   *string   `db:"comment"                     json:"comment,omitempty"`
	RawJudgeResponse          *string   `db:"raw_judge_response"          json:"raw_judge_response,omitempty"`
}

// NewEvaluation builds the row to persist for logID from a judge result.
// Empty comment and raw response are stored as NULL.
func NewEvaluation(logID int64, r EvaluationResult) *Evaluation {
	ev := &Evaluation{
		LogID:                     logID,
		OverallScore:              r.OverallScore,
		ScoreInstructionFollowing: r.ScoreInstructionFollowing,
		ScoreTruthfulness:         r.ScoreTruthfulness,
		IsFlagged:                 r.IsFlagged,
		Label:                     r.Label,
		JudgeModel:                r.JudgeModel,
	}
	if r.Comment != "" {
		c := r.Comment
		ev.Comment = &c
	}
	if r.RawJudgeResponse != "" {
		raw := r.RawJudgeResponse
		ev.RawJudgeResponse = &raw
	}
	return ev
}
