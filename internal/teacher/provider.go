package teacher

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fitsenseai/distill/internal/query"
)

// systemPrompt frames every teacher request for the coaching domain.
const systemPrompt = "You are a senior fitness coach AI. Produce safe, structured, concise guidance. " +
	"Respect medical constraints and avoid unsafe exercise recommendations."

// Provider is a single calling interface over the teacher capability.
// Variants (mock, openai_compatible) are chosen by configuration.
type Provider interface {
	Name() string
	// Generate issues one attempt. Transient failures are reported as
	// errors matching IsTransient; anything else is terminal.
	Generate(ctx context.Context, q query.SyntheticQuery) (*Result, error)
}

// Result is one successful transport response.
type Result struct {
	Text           string
	RequestPayload json.RawMessage
	RawResponse    json.RawMessage
}

// transientError marks a failure worth retrying: timeout, network reset,
// rate limiting, or a 5xx-class response.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	return &transientError{err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
