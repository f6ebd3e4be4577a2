// Package judge scores LLM interactions. RuleJudge applies fixed heuristics;
// LLMJudge asks a second model to grade the response.
package judge

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// Judge scores a single log.
type Judge interface {
	Evaluate(ctx context.Context, log models.Log) (models.EvaluationResult, error)
	// Type reports which strategy this judge implements.
	Type() models.JudgeType
	// Model is the identifier stored in Evaluation.JudgeModel.
	Model() string
}

// Registry holds the judges available to the service, keyed by type.
type Registry map[models.JudgeType]Judge

// NewRegistry indexes judges by their Type. Nil judges are skipped.
func NewRegistry(judges ...Judge) Registry {
	r := make(Registry, len(judges))
	for _, j := range judges {
		if j != nil {
			r[j.Type()] = j
		}
	}
	return r
}

// Get returns the judge for t, or an error when it was never configured.
func (r Registry) Get(t models.JudgeType) (Judge, error) {
	j, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("judge %q is not configured", t)
	}
	return j, nil
}
