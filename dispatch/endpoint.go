// Package dispatch serves one data source: cache lookup, live provider chain,
// then fallback synthesis, in that order.
package dispatch

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/tileproxy/cache"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/metrics"
	"github.com/adeilh/tileproxy/source"
)

// Origin says where a served payload came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginLive     Origin = "live"
	OriginPartial  Origin = "partial"
	OriginFallback Origin = "fallback"
)

// Fetcher runs the live side of a source. *source.Chain implements it.
type Fetcher[Q, T any] interface {
	Fetch(ctx context.Context, q Q) source.Result[T]
}

// Synthetic is implemented by live payloads that may have been partly filled in
// with made-up values. Such payloads are served but never cached.
type Synthetic interface {
	Synthetic() bool
}

// Request is one resolved query.
type Request[Q any] struct {
	Query        Q
	Key          string
	ForceRefresh bool
}

// Outcome is what Serve hands back to the transport layer.
type Outcome[T any] struct {
	Payload   T
	Origin    Origin
	Provider  string
	FetchedAt time.Time
}

// Config describes one source.
type Config struct {
	Source string
	// MaxAge is the freshness window; zero disables cache hits.
	MaxAge time.Duration
	// CacheSynthetic lets a source with no real provider cache its made-up data.
	CacheSynthetic bool
	// NoFallbackStatus and NoFallbackMessage shape the error when the source has no
	// synthesizer. Defaults: 503 and "Unable to fetch <source> data".
	NoFallbackStatus  int
	NoFallbackMessage string
	// NoFallbackDetails, when set, adds request-specific fields to that error body.
	NoFallbackDetails func(key string) map[string]any
}

type options struct {
	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Endpoint is the generic per-source dispatcher.
type Endpoint[Q, T any] struct {
	cfg      Config
	table    *cache.Table[T]
	fetcher  Fetcher[Q, T]
	synth    fallback.Synthesizer[Q, T]
	logger   *zap.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	inflight singleflight.Group
}

// NewEndpoint wires a source. synth may be nil for sources without a fallback.
func NewEndpoint[Q, T any](cfg Config, table *cache.Table[T], fetcher Fetcher[Q, T], synth fallback.Synthesizer[Q, T], opts ...Option) *Endpoint[Q, T] {
	o := options{logger: zap.NewNop(), metrics: metrics.Nop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if cfg.NoFallbackStatus == 0 {
		cfg.NoFallbackStatus = http.StatusServiceUnavailable
	}
	if cfg.NoFallbackMessage == "" {
		cfg.NoFallbackMessage = "Unable to fetch " + cfg.Source + " data"
	}
	return &Endpoint[Q, T]{
		cfg:     cfg,
		table:   table,
		fetcher: fetcher,
		synth:   synth,
		logger:  o.logger.Named("dispatch").With(zap.String("source", cfg.Source)),
		metrics: o.metrics,
		now:     o.now,
	}
}

// Source returns the configured source name.
func (e *Endpoint[Q, T]) Source() string { return e.cfg.Source }

// Serve answers one request. The only error it returns is a *NoFallbackError (or
// the caller's context error while waiting).
func (e *Endpoint[Q, T]) Serve(ctx context.Context, req Request[Q]) (Outcome[T], error) {
	if req.ForceRefresh {
		// A forced request never joins a run started before it.
		out, err := e.refresh(ctx, req)
		if err == nil {
			e.metrics.Dispatch(e.cfg.Source, string(out.Origin))
		}
		return out, err
	}
	if out, ok := e.lookup(ctx, req.Key); ok {
		e.metrics.Dispatch(e.cfg.Source, string(out.Origin))
		return out, nil
	}

	// Concurrent misses for one key share a single upstream run. The run is
	// detached from any one caller so a disconnecting client cannot fail the rest.
	ch := e.inflight.DoChan(req.Key, func() (any, error) {
		out, err := e.refresh(context.WithoutCancel(ctx), req)
		return flight[T]{out: out, err: err}, nil
	})

	select {
	case <-ctx.Done():
		var zero Outcome[T]
		return zero, ctx.Err()
	case res := <-ch:
		f := res.Val.(flight[T])
		if f.err == nil {
			e.metrics.Dispatch(e.cfg.Source, string(f.out.Origin))
		}
		return f.out, f.err
	}
}

type flight[T any] struct {
	out Outcome[T]
	err error
}

func (e *Endpoint[Q, T]) lookup(ctx context.Context, key string) (Outcome[T], bool) {
	var out Outcome[T]
	if e.table == nil || e.cfg.MaxAge <= 0 {
		return out, false
	}
	entry, ok, err := e.table.Get(ctx, key)
	if err != nil {
		e.logger.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return out, false
	}
	if !ok || !entry.IsFresh(e.cfg.MaxAge, e.now()) {
		return out, false
	}
	e.logger.Debug("cache hit", zap.String("key", key), zap.Duration("age", entry.Age(e.now())))
	return Outcome[T]{Payload: entry.Payload, Origin: OriginCache, FetchedAt: entry.FetchedAt}, true
}

func (e *Endpoint[Q, T]) refresh(ctx context.Context, req Request[Q]) (Outcome[T], error) {
	res := e.fetcher.Fetch(ctx, req.Query)
	if res.OK() {
		out := Outcome[T]{Payload: res.Value, Origin: OriginLive, Provider: res.Provider, FetchedAt: e.now()}
		if isSynthetic(res.Value) {
			out.Origin = OriginPartial
			return out, nil
		}
		e.store(ctx, req.Key, res.Value, &out)
		return out, nil
	}

	if e.synth == nil {
		e.logger.Error("all providers failed and no fallback exists", zap.String("key", req.Key), zap.Error(res.Err))
		nf := &NoFallbackError{
			Source:  e.cfg.Source,
			Status:  e.cfg.NoFallbackStatus,
			Message: e.cfg.NoFallbackMessage,
			Cause:   res.Err,
		}
		if e.cfg.NoFallbackDetails != nil {
			nf.Details = e.cfg.NoFallbackDetails(req.Key)
		}
		return Outcome[T]{}, nf
	}

	payload, err := e.synth.Synthesize(req.Query)
	if err != nil {
		e.logger.Error("fallback synthesis failed", zap.String("key", req.Key), zap.Error(err))
		return Outcome[T]{}, &NoFallbackError{
			Source:  e.cfg.Source,
			Status:  e.cfg.NoFallbackStatus,
			Message: e.cfg.NoFallbackMessage,
			Cause:   err,
		}
	}
	e.logger.Warn("serving fallback payload", zap.String("key", req.Key), zap.Error(res.Err))

	out := Outcome[T]{Payload: payload, Origin: OriginFallback, FetchedAt: e.now()}
	if e.cfg.CacheSynthetic {
		e.store(ctx, req.Key, payload, &out)
	}
	return out, nil
}

func (e *Endpoint[Q, T]) store(ctx context.Context, key string, payload T, out *Outcome[T]) {
	if e.table == nil {
		return
	}
	entry, err := e.table.Put(ctx, key, payload)
	if err != nil {
		e.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	out.FetchedAt = entry.FetchedAt
}

func isSynthetic(v any) bool {
	s, ok := v.(Synthetic)
	return ok && s.Synthetic()
}
