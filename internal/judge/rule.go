package judge

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// RuleJudgeModel identifies the rule set in stored evaluations.
const RuleJudgeModel = "rule-basic-v1"

const minResponseLength = 30

var errorKeywords = []string{"error", "exception", "traceback", "failed", "stack overflow"}

// RuleJudge scores responses with length and keyword heuristics. It is pure
// and never fails.
type RuleJudge struct{}

func NewRuleJudge() *RuleJudge { return &RuleJudge{} }

func (*RuleJudge) Type() models.JudgeType { return models.JudgeTypeRule }
func (*RuleJudge) Model() string          { return RuleJudgeModel }

func (*RuleJudge) Evaluate(_ context.Context, log models.Log) (models.EvaluationResult, error) {
	res := models.EvaluationResult{
		OverallScore: 5,
		Label:        models.LabelOK,
		JudgeModel:   RuleJudgeModel,
		Comment:      "Looks fine by basic rules.",
	}

	if n := utf8.RuneCountInString(log.Response); n < minResponseLength {
		res.OverallScore = 2
		res.Label = models.LabelTooShort
		res.Comment = fmt.Sprintf("Response is too short (length: %d chars).", n)
	}

	// Error detection overrides the length verdict.
	if found := matchKeywords(log.Response); len(found) > 0 {
		res.OverallScore = 1
		res.IsFlagged = true
		res.Label = models.LabelErrorLike
		res.Comment = "Response looks like an error message. Detected keywords: " + strings.Join(found, ", ")
	}

	return res, nil
}

func matchKeywords(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}
