// Package indices serves daily moves of the major US stock indices, using ETFs as
// proxies because the free quote API has no index symbols.
package indices

import (
	"context"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const Source = "indices"

// Index is one tracked index and the ETF quoted in its place.
type Index struct {
	Symbol string
	Name   string
	Proxy  string
}

var Tracked = []Index{
	{Symbol: "^GSPC", Name: "S&P 500", Proxy: "SPY"},
	{Symbol: "^IXIC", Name: "NASDAQ", Proxy: "QQQ"},
	{Symbol: "^DJI", Name: "Dow", Proxy: "DIA"},
}

// Quote is one element of the /api/stocks body.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// Board holds a quote per tracked index. A board with some quotes made up is
// served but not cached.
type Board struct {
	Quotes  []Quote `json:"quotes"`
	partial bool
}

func (b Board) Synthetic() bool { return b.partial }

type Config struct {
	MaxAge  time.Duration
	BaseURL string
	APIKey  string
	// Pace is the minimum gap between quote calls.
	Pace time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAge:  5 * time.Minute,
		BaseURL: "https://www.alphavantage.co",
		APIKey:  "demo",
		Pace:    1200 * time.Millisecond,
	}
}

type Feed struct {
	endpoint *dispatch.Endpoint[struct{}, Board]
	client   *httpx.Client
	key      string
	limiter  *rate.Limiter
	timeout  time.Duration
	rng      fallback.Rand
	logger   *zap.Logger
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	limit := rate.Inf
	if cfg.Pace > 0 {
		limit = rate.Every(cfg.Pace)
	}
	f := &Feed{
		client:  d.Client(cfg.BaseURL),
		key:     cfg.APIKey,
		limiter: rate.NewLimiter(limit, 1),
		rng:     d.Rand,
		logger:  d.Logger.Named(Source),
	}
	f.timeout = d.Timeout
	if f.timeout <= 0 {
		f.timeout = source.DefaultTimeout
	}
	providers := []source.Provider[struct{}, Board]{source.NewProvider("alphavantage", f.board)}
	// Each attempt already costs one call per index against a small daily quota.
	chain := source.NewChain(Source, validate, providers, d.ChainOptions(
		source.WithAttempts(1),
		source.WithTimeout(f.boardTimeout(cfg.Pace)),
	)...)
	f.endpoint = dispatch.NewEndpoint[struct{}, Board](dispatch.Config{
		Source: Source,
		MaxAge: cfg.MaxAge,
	}, feeds.Table[Board](d, Source, cfg.MaxAge), chain, fallback.SynthesizerFunc[struct{}, Board](f.synthesize), d.EndpointOptions()...)
	return f
}

func (f *Feed) Endpoint() *dispatch.Endpoint[struct{}, Board] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/stocks", dispatch.Handler(f.endpoint, parse, render))
}

func parse(c httpx.Context) (dispatch.Request[struct{}], error) {
	return dispatch.Request[struct{}]{Key: "all", ForceRefresh: feeds.Bool(c, "forceRefresh", false)}, nil
}

func render(_ struct{}, out dispatch.Outcome[Board]) (any, error) {
	return out.Payload.Quotes, nil
}

func validate(b Board) error {
	return source.Require(source.Field("quotes", len(b.Quotes) == len(Tracked)))
}

type globalQuote struct {
	Note  string            `json:"Note"`
	Quote map[string]string `json:"Global Quote"`
}

// board quotes every tracked index in turn, paced by the limiter. An index whose
// call fails gets made-up numbers and marks the board partial; the board only
// fails when no index could be quoted.
func (f *Feed) board(ctx context.Context, _ struct{}) (Board, error) {
	var (
		b    Board
		errs error
	)
	for _, idx := range Tracked {
		q, err := f.quote(ctx, idx)
		if err != nil {
			if ctx.Err() != nil {
				return Board{}, source.Unavailable("alphavantage", ctx.Err())
			}
			f.logger.Warn("index quote failed, synthesizing", zap.String("symbol", idx.Proxy), zap.Error(err))
			errs = multierr.Append(errs, err)
			q = f.fake(idx)
			b.partial = true
		}
		b.Quotes = append(b.Quotes, q)
	}
	if len(multierr.Errors(errs)) == len(Tracked) {
		return Board{}, errs
	}
	return b, nil
}

// boardTimeout covers every quote call plus the pacing gaps between them.
func (f *Feed) boardTimeout(pace time.Duration) time.Duration {
	n := time.Duration(len(Tracked))
	return n*f.timeout + (n-1)*pace
}

func (f *Feed) quote(ctx context.Context, idx Index) (Quote, error) {
	const name = "alphavantage"
	if err := f.limiter.Wait(ctx); err != nil {
		return Quote{}, source.Unavailable(name, err)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	var body globalQuote
	err := upstream.Get(ctx, f.client, name, "/query", &body, httpx.WithQuery(map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   idx.Proxy,
		"apikey":   f.key,
	}))
	if err != nil {
		return Quote{}, err
	}
	if strings.Contains(body.Note, "API call frequency") {
		return Quote{}, source.RateLimited(name, body.Note)
	}
	raw := body.Quote["10. change percent"]
	if raw == "" {
		return Quote{}, source.Malformed(name, "%s: 10. change percent missing", idx.Proxy)
	}
	pct, _ := upstream.Percent(raw)
	change, _ := upstream.Float(body.Quote["09. change"])
	return Quote{Symbol: idx.Symbol, Name: idx.Name, Change: change, ChangePercent: pct}, nil
}

func (f *Feed) fake(idx Index) Quote {
	return Quote{
		Symbol:        idx.Symbol,
		Name:          idx.Name,
		Change:        fallback.Uniform(f.rng, -2, 2),
		ChangePercent: fallback.Uniform(f.rng, -2, 2),
	}
}

func (f *Feed) synthesize(struct{}) (Board, error) {
	b := Board{Quotes: make([]Quote, 0, len(Tracked))}
	for _, idx := range Tracked {
		b.Quotes = append(b.Quotes, f.fake(idx))
	}
	return b, nil
}
