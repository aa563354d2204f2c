// Package dashboard wires configuration into a running server: the cache backend,
// every data source under /api, and the operational routes.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/adeilh/tileproxy/cache"
	"github.com/adeilh/tileproxy/cache/memory"
	"github.com/adeilh/tileproxy/cache/redis"
	"github.com/adeilh/tileproxy/config"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/geocode"
	"github.com/adeilh/tileproxy/feeds/headlines"
	"github.com/adeilh/tileproxy/feeds/indices"
	"github.com/adeilh/tileproxy/feeds/orbit"
	"github.com/adeilh/tileproxy/feeds/price"
	"github.com/adeilh/tileproxy/feeds/seismic"
	"github.com/adeilh/tileproxy/feeds/weather"
	"github.com/adeilh/tileproxy/feeds/wiki"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/metrics"
)

const (
	APIPrefix     = "/api"
	HealthPath    = "/healthz"
	MetricsPath   = "/metrics"
	healthTimeout = 2 * time.Second
)

// Feed is a data source that can mount its routes.
type Feed interface {
	Mount(r *httpx.Router)
}

type Dashboard struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   cache.Store
	pinger  pinger
	closer  func() error
	metrics *metrics.Prometheus
	server  *httpx.Server
	feeds   []Feed
}

type pinger interface {
	Ping(ctx context.Context) error
}

type options struct {
	store cache.Store
	rng   fallback.Rand
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*options)

// WithStore replaces the configured cache backend.
func WithStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

func WithRand(r fallback.Rand) Option {
	return func(o *options) { o.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep replaces the retry backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// New builds every component. Nothing listens until Run.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dashboard, error) {
	if cfg == nil {
		return nil, errors.New("dashboard: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	d := &Dashboard{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewPrometheus("dashd"),
		closer:  func() error { return nil },
	}
	if err := d.openStore(o.store); err != nil {
		return nil, err
	}

	rng := o.rng
	if rng == nil {
		rng = fallback.NewRand(cfg.Upstream.Seed)
	}
	deps := feeds.Deps{
		Store:     d.store,
		Logger:    logger,
		Metrics:   d.metrics,
		Rand:      rng,
		Now:       o.now,
		Attempts:  cfg.Upstream.Attempts,
		Backoff:   cfg.Upstream.Backoff,
		Timeout:   cfg.Upstream.Timeout,
		Sleep:     o.sleep,
		UserAgent: cfg.Upstream.UserAgent,
	}
	d.feeds = buildFeeds(cfg, deps)

	cors := httpx.DefaultCORSConfig
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.CORSOrigins
	}
	cors.AllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

	d.server = httpx.NewServer(
		httpx.WithAddress(cfg.Server.Address),
		httpx.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		httpx.WithLogger(logger),
		httpx.WithCORS(&cors),
	)
	d.server.RegisterRoutes(d.routes)
	return d, nil
}

func (d *Dashboard) openStore(override cache.Store) error {
	if override != nil {
		d.store = override
		return nil
	}
	switch d.cfg.Cache.Backend {
	case config.BackendRedis:
		r := d.cfg.Cache.Redis
		s := redis.NewStore(redis.Options{
			Addr:         r.Addr,
			Password:     r.Password,
			DB:           r.DB,
			Namespace:    r.Namespace,
			PoolSize:     r.PoolSize,
			DialTimeout:  r.DialTimeout,
			ReadTimeout:  r.ReadTimeout,
			WriteTimeout: r.WriteTimeout,
		})
		d.store, d.pinger, d.closer = s, s, s.Close
		d.logger.Info("cache backend", zap.String("backend", config.BackendRedis), zap.String("addr", r.Addr))
	case config.BackendMemory, "":
		d.store = memory.NewStore()
		d.logger.Info("cache backend", zap.String("backend", config.BackendMemory))
	default:
		return errors.Errorf("dashboard: unknown cache backend %q", d.cfg.Cache.Backend)
	}
	return nil
}

func buildFeeds(cfg *config.Config, deps feeds.Deps) []Feed {
	s, k := cfg.Sources, cfg.Keys
	return []Feed{
		price.New(deps, price.Config{
			MaxAge:          s.Price.MaxAge,
			CoinGeckoURL:    s.Price.BaseURL,
			AlphaVantageURL: s.Price.FallbackURL,
			AlphaVantageKey: k.AlphaVantage,
		}),
		seismic.New(deps, seismic.Config{MaxAge: s.Seismic.MaxAge, BaseURL: s.Seismic.BaseURL}),
		geocode.New(deps, geocode.Config{MaxAge: s.Geocode.MaxAge, BaseURL: s.Geocode.BaseURL, APIKey: k.Geocode}),
		orbit.New(deps, orbit.Config{MaxAge: s.Orbit.MaxAge, BaseURL: s.Orbit.BaseURL}),
		headlines.New(deps, headlines.Config{MaxAge: s.Headlines.MaxAge, BaseURL: s.Headlines.BaseURL, APIKey: k.NYT}),
		indices.New(deps, indices.Config{
			MaxAge:  s.Indices.MaxAge,
			BaseURL: s.Indices.BaseURL,
			APIKey:  k.AlphaVantage,
			Pace:    s.Indices.Pace,
		}),
		weather.New(deps, weather.Config{MaxAge: s.Weather.MaxAge, BaseURL: s.Weather.BaseURL, APIKey: k.WeatherAPI}),
		wiki.New(deps, wiki.Config{MaxAge: s.Wiki.MaxAge, BaseURL: s.Wiki.BaseURL, MaxTiles: s.Wiki.MaxTiles}),
	}
}

func (d *Dashboard) routes(app *httpx.App) {
	api := app.Group(APIPrefix)
	for _, f := range d.feeds {
		f.Mount(api)
	}
	app.GET(HealthPath, d.health)
	app.GET(MetricsPath, httpx.WrapHandler(d.metrics.Handler()))
}

func (d *Dashboard) health(c httpx.Context) error {
	if d.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := d.pinger.Ping(ctx); err != nil {
			d.logger.Warn("health check: cache unreachable", zap.Error(err))
			return httpx.HTTPError(httpx.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  "cache unreachable",
			})
		}
	}
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
}

// Handler exposes the routed handler without listening.
func (d *Dashboard) Handler() http.Handler { return d.server.Handler() }

// Metrics exposes the recorder the feeds report to.
func (d *Dashboard) Metrics() *metrics.Prometheus { return d.metrics }

// Run serves until ctx is cancelled, then drains within the configured shutdown
// timeout and releases the cache backend.
func (d *Dashboard) Run(ctx context.Context) error {
	err := d.server.Start(ctx, httpx.WithShutdownTimeout(d.cfg.Server.ShutdownTimeout))
	if cerr := d.Close(); cerr != nil {
		d.logger.Warn("closing cache backend", zap.Error(cerr))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dashboard) Close() error { return d.closer() }
