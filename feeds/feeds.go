// Package feeds holds what every data source shares: the injected dependencies and
// the query-string conventions the dashboard tiles use.
package feeds

import (
	"context"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/adeilh/tileproxy/cache"
	"github.com/adeilh/tileproxy/cache/memory"
	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/metrics"
	"github.com/adeilh/tileproxy/source"
)

// Deps is constructed once at startup and handed to every feed.
type Deps struct {
	Store   cache.Store
	Logger  *zap.Logger
	Metrics metrics.Recorder
	Rand    fallback.Rand
	Now     func() time.Time

	// Retry policy shared by every chain; zero values keep the source defaults.
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
	// Sleep replaces the retry backoff wait. Tests set it to skip real delays.
	Sleep func(ctx context.Context, d time.Duration) error

	UserAgent string
}

// WithDefaults fills unset fields so a zero Deps is usable in tests.
func (d Deps) WithDefaults() Deps {
	if d.Store == nil {
		d.Store = memory.NewStore()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	if d.Rand == nil {
		d.Rand = fallback.NewRand(0)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// ChainOptions returns the shared retry policy followed by extra.
func (d Deps) ChainOptions(extra ...source.ChainOption) []source.ChainOption {
	opts := []source.ChainOption{
		source.WithLogger(d.Logger),
		source.WithMetrics(d.Metrics),
	}
	if d.Attempts > 0 {
		opts = append(opts, source.WithAttempts(d.Attempts))
	}
	if d.Backoff > 0 {
		opts = append(opts, source.WithBackoff(d.Backoff))
	}
	if d.Timeout > 0 {
		opts = append(opts, source.WithTimeout(d.Timeout))
	}
	if d.Sleep != nil {
		opts = append(opts, source.WithSleep(d.Sleep))
	}
	return append(opts, extra...)
}

// EndpointOptions returns the dispatch options every feed uses.
func (d Deps) EndpointOptions() []dispatch.Option {
	return []dispatch.Option{
		dispatch.WithLogger(d.Logger),
		dispatch.WithMetrics(d.Metrics),
		dispatch.WithClock(d.Now),
	}
}

// RetentionWindows is how many freshness windows a written entry outlives before
// the backend drops it. Stale entries are never served, so this only bounds growth
// of a shared backend.
const RetentionWindows = 4

// Table returns a typed cache view for one source whose entries are fresh for maxAge.
func Table[T any](d Deps, source string, maxAge time.Duration) *cache.Table[T] {
	return cache.NewTable[T](d.Store, source,
		cache.WithClock(d.Now),
		cache.WithRetention(RetentionWindows*maxAge),
	)
}

// Client builds an upstream client rooted at baseURL.
func (d Deps) Client(baseURL string, opts ...httpx.ClientOption) *httpx.Client {
	all := []httpx.ClientOption{httpx.WithBaseURL(baseURL)}
	if d.Timeout > 0 {
		all = append(all, httpx.WithClientTimeout(d.Timeout))
	}
	if d.UserAgent != "" {
		all = append(all, httpx.WithHeaders(map[string]string{"User-Agent": d.UserAgent}))
	}
	return httpx.NewClient(append(all, opts...)...)
}

// Bool reads a boolean query parameter. Absent or unparsable values yield def.
func Bool(c httpx.Context, name string, def bool) bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return v
}

// Present reports whether the query string carries name at all.
func Present(c httpx.Context, name string) bool {
	_, ok := c.QueryParams()[name]
	return ok
}
