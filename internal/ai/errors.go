package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

var (
	ErrQuotaExceeded       = errors.New("ai provider quota exceeded")
	ErrAuthFailure         = errors.New("ai provider rejected credentials")
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrProviderError       = errors.New("ai provider error")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// Classify maps a vendor SDK or transport error onto one of the package
// sentinels. The provider error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrQuotaExceeded, ErrAuthFailure, ErrProviderUnavailable,
		ErrProviderError, ErrInferenceTimeout, ErrInvalidResponse,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrInferenceTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return fmt.Errorf("%w: %w", statusSentinel(openaiErr.StatusCode), err)
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return fmt.Errorf("%w: %w", statusSentinel(anthropicErr.StatusCode), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	return fmt.Errorf("%w: %w", ErrProviderError, err)
}

func statusSentinel(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailure
	default:
		return ErrProviderError
	}
}
