package judge

import (
	"context"
	"time"

	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

// LLMJudge grades responses by asking an external model. It never retries.
type LLMJudge struct {
	provider models.AIProvider
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewLLMJudge wraps provider. A zero timeout leaves the caller's deadline in
// charge; m may be nil.
func NewLLMJudge(provider models.AIProvider, timeout time.Duration, m *metrics.Metrics) *LLMJudge {
	return &LLMJudge{provider: provider, timeout: timeout, metrics: m}
}

func (*LLMJudge) Type() models.JudgeType { return models.JudgeTypeLLM }
func (j *LLMJudge) Model() string        { return j.provider.Model() }

func (j *LLMJudge) Evaluate(ctx context.Context, log models.Log) (models.EvaluationResult, error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := j.provider.Complete(ctx, BuildPrompt(log))
	if err != nil {
		j.metrics.RecordJudgeRequest(j.Model(), "error", time.Since(start))
		return models.EvaluationResult{}, fromProvider(err)
	}
	j.metrics.RecordJudgeRequest(j.Model(), "success", time.Since(start))

	s, perr := parseScores(text)
	if perr != nil {
		return models.EvaluationResult{}, perr
	}

	return models.EvaluationResult{
		OverallScore:              s.Overall,
		ScoreInstructionFollowing: &s.InstructionFollowing,
		ScoreTruthfulness:         &s.Truthfulness,
		IsFlagged:                 s.Overall < 3,
		Label:                     models.LabelLLMJudge,
		JudgeModel:                j.Model(),
		Comment:                   s.Comments,
		RawJudgeResponse:          text,
	}, nil
}
