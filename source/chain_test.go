package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Price float64
}

func validQuote(q quote) error {
	return Require(Field("price", q.Price > 0))
}

// scripted returns each entry of outcomes in turn, repeating the last one.
func scripted(name string, calls *int32, outcomes ...func() (quote, error)) Provider[string, quote] {
	return NewProvider(name, func(ctx context.Context, _ string) (quote, error) {
		n := atomic.AddInt32(calls, 1)
		i := int(n) - 1
		if i >= len(outcomes) {
			i = len(outcomes) - 1
		}
		return outcomes[i]()
	})
}

func fail(err error) func() (quote, error) { return func() (quote, error) { return quote{}, err } }

func ok(p float64) func() (quote, error) {
	return func() (quote, error) { return quote{Price: p}, nil }
}

func noSleep(opts ...ChainOption) []ChainOption {
	return append([]ChainOption{WithSleep(func(context.Context, time.Duration) error { return nil })}, opts...)
}

func TestChainPrimarySucceeds(t *testing.T) {
	var primary, secondary int32
	chain := NewChain("price", validQuote, []Provider[string, quote]{
		scripted("primary", &primary, ok(100)),
		scripted("secondary", &secondary, ok(200)),
	}, noSleep()...)

	res := chain.Fetch(context.Background(), "btc")
	require.True(t, res.OK())
	assert.Equal(t, 100.0, res.Value.Price)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, 1, res.Attempts)
	assert.EqualValues(t, 0, secondary)
}

func TestChainRetriesThenSucceeds(t *testing.T) {
	var calls int32
	var slept []time.Duration
	chain := NewChain("price", validQuote, []Provider[string, quote]{
		scripted("primary", &calls, fail(errors.New("connection reset")), ok(42)),
	}, WithBackoff(time.Second), WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	res := chain.Fetch(context.Background(), "btc")
	require.True(t, res.OK())
	assert.Equal(t, 42.0, res.Value.Price)
	assert.EqualValues(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, slept)
}

func TestChainRetryCeilingThenFallsThrough(t *testing.T) {
	var primary, secondary int32
	chain := NewChain("price", validQuote, []Provider[string, quote]{
		scripted("primary", &primary, fail(Unavailable("", errors.New("http 500")))),
		scripted("secondary", &secondary, ok(7)),
	}, noSleep()...)

	res := chain.Fetch(context.Background(), "btc")
	require.True(t, res.OK())
	assert.Equal(t, "secondary", res.Provider)
	assert.EqualValues(t, DefaultAttempts, primary, "a failing provider is called exactly the attempt count")
	assert.EqualValues(t, 1, secondary)
	assert.Equal(t, 3, res.Attempts)
}

func TestChainAllProvidersFail(t *testing.T) {
	var primary, secondary int32
	chain := NewChain("price", validQuote, []Provider[string, quote]{
		scripted("primary", &primary, fail(RateLimited("", "API call frequency exceeded"))),
		scripted("secondary", &secondary, ok(0)), // fails validation
	}, noSleep(WithAttempts(2))...)

	res := chain.Fetch(context.Background(), "btc")
	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrAllProvidersFailed)
	assert.ErrorIs(t, res.Err, ErrProviderRateLimited)
	assert.ErrorIs(t, res.Err, ErrProviderMalformed)
	assert.EqualValues(t, 2, primary)
	assert.EqualValues(t, 2, secondary)

	var chainErr *ChainError
	require.ErrorAs(t, res.Err, &chainErr)
	assert.Equal(t, "price", chainErr.Source)
	assert.Contains(t, res.Err.Error(), "primary")
}

func TestChainNoDataIsNotRetried(t *testing.T) {
	var primary, secondary int32
	chain := NewChain("seismic", validQuote, []Provider[string, quote]{
		scripted("significant", &primary, fail(NoData("", "no features"))),
		scripted("day", &secondary, ok(3.1)),
	}, noSleep()...)

	res := chain.Fetch(context.Background(), "q")
	require.True(t, res.OK())
	assert.EqualValues(t, 1, primary)
	assert.Equal(t, "day", res.Provider)
}

func TestChainRecoversProviderPanic(t *testing.T) {
	var calls int32
	chain := NewChain("price", nil, []Provider[string, quote]{
		scripted("primary", &calls, func() (quote, error) { panic("nil map") }),
	}, noSleep(WithAttempts(1))...)

	res := chain.Fetch(context.Background(), "btc")
	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrProviderUnavailable)
}

func TestChainAppliesPerCallTimeout(t *testing.T) {
	slow := NewProvider("slow", func(ctx context.Context, _ string) (quote, error) {
		<-ctx.Done()
		return quote{}, ctx.Err()
	})
	chain := NewChain("price", nil, []Provider[string, quote]{slow}, noSleep(WithAttempts(1), WithTimeout(20*time.Millisecond))...)

	start := time.Now()
	res := chain.Fetch(context.Background(), "btc")
	require.False(t, res.OK())
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	chain := NewChain("price", nil, []Provider[string, quote]{
		NewProvider("primary", func(context.Context, string) (quote, error) {
			atomic.AddInt32(&calls, 1)
			cancel()
			return quote{}, errors.New("boom")
		}),
	}, WithBackoff(time.Hour))

	res := chain.Fetch(ctx, "btc")
	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.EqualValues(t, 1, calls)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrProviderMalformed, KindOf(Malformed("p", "missing %s", "x")))
	assert.Equal(t, ErrNoData, KindOf(NoData("p", "empty")))
	assert.Equal(t, ErrProviderUnavailable, KindOf(errors.New("plain")))
	assert.Equal(t, ErrProviderMalformed, KindOf(attribute("p", Missing("market_data"))))
}
