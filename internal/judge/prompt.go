package judge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

const snippetLimit = 200

const promptHeader = `You are an expert evaluator for large language model outputs.

You will be given:
- A user prompt
- The model's response

Evaluate the response according to these criteria (1 to 5, integer only):
- score_overall: Overall quality and usefulness.
- score_instruction_following: How well the response follows the user's instructions.
- score_truthfulness: How factually accurate and non-misleading the response is.

Return ONLY a valid JSON object with the following structure:

{
  "score_overall": 1,
  "score_instruction_following": 1,
  "score_truthfulness": 1,
  "comments": "Short explanation in English."
}

Do not include any additional text outside the JSON.

--- USER PROMPT ---
`

// BuildPrompt renders the grading instructions followed by the log's prompt
// and response.
func BuildPrompt(log models.Log) string {
	return promptHeader + log.Prompt + "\n\n--- MODEL RESPONSE ---\n" + log.Response
}

// scores is the decoded judge reply.
type scores struct {
	Overall              int
	InstructionFollowing int
	Truthfulness         int
	Comments             string
}

// parseScores decodes text strictly: a single JSON object whose three score
// fields are integers in [1, 5]. Code fences or surrounding prose are rejected.
func parseScores(text string) (scores, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return scores{}, badResponse(fmt.Sprintf("Failed to parse judge JSON: %v.", err), text)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return scores{}, badResponse("Failed to parse judge JSON: unexpected data after object.", text)
	}

	var s scores
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"score_overall", &s.Overall},
		{"score_instruction_following", &s.InstructionFollowing},
		{"score_truthfulness", &s.Truthfulness},
	} {
		v, msg := intField(data, f.key)
		if msg != "" {
			return scores{}, badResponse(msg, text)
		}
		*f.dst = v
	}

	switch c := data["comments"].(type) {
	case nil:
	case string:
		s.Comments = c
	default:
		s.Comments = fmt.Sprint(c)
	}
	return s, nil
}

// intField returns the score at key, or a diagnostic when it is missing,
// not an integer, or out of range.
func intField(data map[string]any, key string) (int, string) {
	raw, ok := data[key]
	if !ok {
		return 0, fmt.Sprintf("Missing required field %s.", key)
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Sprintf("Invalid type for %s, expected int, got %T.", key, raw)
	}
	v, err := num.Int64()
	if err != nil {
		return 0, fmt.Sprintf("Invalid type for %s, expected int, got %s.", key, num)
	}
	if v < models.MinScore || v > models.MaxScore {
		return 0, fmt.Sprintf("Score %s out of range: %d.", key, v)
	}
	return int(v), ""
}

func badResponse(msg, raw string) *Error {
	return &Error{Kind: KindBadResponse, Message: msg, Snippet: truncate(raw, snippetLimit)}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
