package source

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/adeilh/tileproxy/metrics"
)

const (
	DefaultAttempts = 2
	DefaultBackoff  = time.Second
	DefaultTimeout  = 8 * time.Second
)

type chainOptions struct {
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	metrics  metrics.Recorder
	sleep    func(context.Context, time.Duration) error
}

type ChainOption func(*chainOptions)

func defaultChainOptions() chainOptions {
	return chainOptions{
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
		metrics:  metrics.Nop(),
		sleep:    sleepCtx,
	}
}

// WithAttempts sets how many times each provider is tried before falling through.
func WithAttempts(n int) ChainOption {
	return func(o *chainOptions) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithBackoff sets the fixed delay slept before every retry of the same provider.
// Zero disables the delay.
func WithBackoff(d time.Duration) ChainOption {
	return func(o *chainOptions) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// WithTimeout bounds each individual provider call.
func WithTimeout(d time.Duration) ChainOption {
	return func(o *chainOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) ChainOption {
	return func(o *chainOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) ChainOption {
	return func(o *chainOptions) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithSleep replaces the backoff sleeper (tests).
func WithSleep(fn func(context.Context, time.Duration) error) ChainOption {
	return func(o *chainOptions) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// Chain tries providers in priority order, retrying each a fixed number of times
// with a fixed backoff, and validates every payload before accepting it.
type Chain[Q, T any] struct {
	source    string
	providers []Provider[Q, T]
	validate  Validator[T]
	opts      chainOptions
}

// NewChain builds a chain for the named source. validate may be nil.
func NewChain[Q, T any](source string, validate Validator[T], providers []Provider[Q, T], opts ...ChainOption) *Chain[Q, T] {
	cfg := defaultChainOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.logger = cfg.logger.Named("source").With(zap.String("source", source))
	return &Chain[Q, T]{
		source:    source,
		providers: append([]Provider[Q, T](nil), providers...),
		validate:  validate,
		opts:      cfg,
	}
}

// Source returns the name the chain was built with.
func (c *Chain[Q, T]) Source() string { return c.source }

// Fetch runs the chain. It never returns a bare error: failures come back as a
// Result whose Err wraps ErrAllProvidersFailed, or the context error.
func (c *Chain[Q, T]) Fetch(ctx context.Context, q Q) Result[T] {
	var errs error
	total := 0
	for _, p := range c.providers {
		for attempt := 1; attempt <= c.opts.attempts; attempt++ {
			if attempt > 1 {
				if err := c.opts.sleep(ctx, c.opts.backoff); err != nil {
					return Fail[T](errors.Wrapf(err, "%s: interrupted", c.source))
				}
			}
			total++
			v, err := c.try(ctx, p, q)
			if err == nil {
				res := Ok(v, p.Name())
				res.Attempts = total
				return res
			}
			errs = multierr.Append(errs, err)
			c.opts.logger.Warn("provider attempt failed",
				zap.String("provider", p.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if errors.Is(err, ErrNoData) {
				break
			}
			if ctx.Err() != nil {
				return Fail[T](errors.Wrapf(ctx.Err(), "%s: interrupted", c.source))
			}
		}
	}
	if errs == nil {
		errs = errors.New("no providers configured")
	}
	res := Fail[T](&ChainError{Source: c.source, Errs: errs})
	res.Attempts = total
	return res
}

func (c *Chain[Q, T]) try(ctx context.Context, p Provider[Q, T], q Q) (v T, err error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, Unavailable(p.Name(), fmt.Errorf("panic: %v", r))
		}
		c.opts.metrics.Attempt(c.source, p.Name(), outcome(err), time.Since(start))
	}()

	v, err = p.Fetch(callCtx, q)
	if err != nil {
		return v, attribute(p.Name(), err)
	}
	if c.validate != nil {
		if verr := c.validate(v); verr != nil {
			var zero T
			return zero, attribute(p.Name(), verr)
		}
	}
	c.opts.logger.Debug("provider answered", zap.String("provider", p.Name()), zap.Duration("took", time.Since(start)))
	return v, nil
}

// attribute makes sure err names the provider and carries a kind. Bare validator
// errors count as malformed payloads, other bare errors as unavailability.
func attribute(provider string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return err
	}
	if errors.Is(err, ErrProviderMalformed) || errors.Is(err, errValidation) {
		return newProviderError(provider, ErrProviderMalformed, err)
	}
	return Unavailable(provider, err)
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch KindOf(err) {
	case ErrNoData:
		return metrics.OutcomeNoData
	case ErrProviderRateLimited:
		return metrics.OutcomeRateLimited
	case ErrProviderMalformed:
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeUnavailable
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
