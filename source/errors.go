package source

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds. Adapters classify every upstream failure as one of these so the
// chain can decide whether to retry, and so logs and metrics can tell them apart.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderMalformed   = errors.New("provider payload malformed")
	// ErrNoData means the provider answered correctly but had nothing for the
	// query. It is not retried.
	ErrNoData = errors.New("provider has no data")

	ErrAllProvidersFailed = errors.New("all providers failed")
)

// ProviderError attributes a failure to one provider.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newProviderError(provider string, kind, err error) error {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// Unavailable reports a network failure or non-2xx response.
func Unavailable(provider string, err error) error {
	return newProviderError(provider, ErrProviderUnavailable, err)
}

// RateLimited reports an explicit rate-limit marker in an otherwise valid response.
func RateLimited(provider, marker string) error {
	return newProviderError(provider, ErrProviderRateLimited, errors.New(marker))
}

// Malformed reports a response missing a field the dashboard needs.
func Malformed(provider, format string, args ...any) error {
	return newProviderError(provider, ErrProviderMalformed, errors.Errorf(format, args...))
}

// NoData reports a well-formed but empty answer.
func NoData(provider, format string, args ...any) error {
	return newProviderError(provider, ErrNoData, errors.Errorf(format, args...))
}

// KindOf returns the failure kind carried by err, defaulting to
// ErrProviderUnavailable for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNoData, ErrProviderRateLimited, ErrProviderMalformed, ErrProviderUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrProviderUnavailable
}

// ChainError is returned when every provider of a chain is exhausted.
type ChainError struct {
	Source string
	// Errs aggregates every attempt's error, oldest first.
	Errs error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Source, ErrAllProvidersFailed, e.Errs)
}

func (e *ChainError) Unwrap() []error {
	return []error{ErrAllProvidersFailed, e.Errs}
}
