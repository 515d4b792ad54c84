package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/sashabaranov/go-openai"
)

// ProviderError describes a failed generation call. It matches [errors.ErrProvider].
type ProviderError struct {
	Provider   string
	StatusCode int
	// Retryable is true for timeouts, rate limits, server errors and truncated output.
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Err, errors.ErrProvider}
}

// NewTruncatedError reports output that hit the token limit.
func NewTruncatedError(provider string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: 0,
		Retryable:  true,
		Err:        errors.New("output truncated at token limit"),
	}
}

// providerError classifies an error returned by the OpenAI SDK.
func providerError(provider string, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, StatusCode: 0, Retryable: false, Err: err}
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		pe.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		pe.StatusCode = reqErr.HTTPStatusCode
	case errors.Is(err, context.DeadlineExceeded):
		pe.Retryable = true
		return pe
	default:
		// Transport failures without a response are worth retrying.
		pe.Retryable = !errors.Is(err, context.Canceled)
		return pe
	}
	pe.Retryable = pe.StatusCode == http.StatusTooManyRequests || pe.StatusCode >= http.StatusInternalServerError ||
		pe.StatusCode == http.StatusRequestTimeout
	return pe
}
