package source

import "context"

// Provider is one upstream API able to answer queries of type Q with payloads of
// type T. Fetch returns a normalized payload; it should classify failures with
// Unavailable, RateLimited, Malformed or NoData.
type Provider[Q, T any] interface {
	Name() string
	Fetch(ctx context.Context, q Q) (T, error)
}

// Validator checks the fields downstream rendering needs. A non-nil error turns an
// otherwise successful fetch into a malformed-payload failure.
type Validator[T any] func(T) error

type funcProvider[Q, T any] struct {
	name string
	fn   func(context.Context, Q) (T, error)
}

func (p funcProvider[Q, T]) Name() string { return p.name }

func (p funcProvider[Q, T]) Fetch(ctx context.Context, q Q) (T, error) { return p.fn(ctx, q) }

// NewProvider adapts a function into a Provider.
func NewProvider[Q, T any](name string, fn func(context.Context, Q) (T, error)) Provider[Q, T] {
	return funcProvider[Q, T]{name: name, fn: fn}
}

// Result is the outcome of running a chain: a value from Provider, or Err.
type Result[T any] struct {
	Value    T
	Provider string
	Attempts int
	Err      error
}

// Ok builds a successful result.
func Ok[T any](v T, provider string) Result[T] {
	return Result[T]{Value: v, Provider: provider}
}

// Fail builds a failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool { return r.Err == nil }
