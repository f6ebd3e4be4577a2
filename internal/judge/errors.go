package judge

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/llm-quality-observer/internal/ai"
)

// Kind classifies why an LLM judgment failed.
type Kind string

const (
	KindBadResponse   Kind = "bad_response"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindAuthFailure   Kind = "auth_failure"
	KindUnavailable   Kind = "unavailable"
	KindProviderError Kind = "provider_error"
)

// Error is returned by LLMJudge for every failure. Snippet carries a prefix
// of the raw reply when the reply itself was the problem.
type Error struct {
	Kind    Kind
	Message string
	Snippet string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("judge %s: %s", e.Kind, e.Message)
	if e.Snippet != "" {
		msg += fmt.Sprintf(" Raw text: %s", e.Snippet)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, if err carries a *Error.
func KindOf(err error) (Kind, bool) {
	var je *Error
	if errors.As(err, &je) {
		return je.Kind, true
	}
	return "", false
}

// Retryable reports whether retrying the same request may succeed.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindQuotaExceeded || kind == KindUnavailable)
}

func fromProvider(err error) *Error {
	kind := KindProviderError
	switch {
	case errors.Is(err, ai.ErrQuotaExceeded):
		kind = KindQuotaExceeded
	case errors.Is(err, ai.ErrAuthFailure):
		kind = KindAuthFailure
	case errors.Is(err, ai.ErrProviderUnavailable), errors.Is(err, ai.ErrInferenceTimeout):
		kind = KindUnavailable
	case errors.Is(err, ai.ErrInvalidResponse):
		kind = KindBadResponse
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}
