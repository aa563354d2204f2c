// Package price serves the spot Bitcoin quote. It has no fallback: when every
// provider fails the tile shows an error rather than a made-up price.
package price

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const Source = "price"

// Quote is the body of /api/bitcoin.
type Quote struct {
	Price            float64 `json:"price"`
	ChangePercent24h float64 `json:"changePercent24h"`
	Source           string  `json:"source"`
}

type Config struct {
	MaxAge          time.Duration
	CoinGeckoURL    string
	AlphaVantageURL string
	AlphaVantageKey string
}

func DefaultConfig() Config {
	return Config{
		MaxAge:          time.Minute,
		CoinGeckoURL:    "https://api.coingecko.com",
		AlphaVantageURL: "https://www.alphavantage.co",
		AlphaVantageKey: "demo",
	}
}

type Feed struct {
	endpoint *dispatch.Endpoint[string, Quote]
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	providers := []source.Provider[string, Quote]{
		coinGecko(d.Client(cfg.CoinGeckoURL)),
		alphaVantage(d.Client(cfg.AlphaVantageURL), cfg.AlphaVantageKey),
	}
	chain := source.NewChain(Source, validate, providers, d.ChainOptions()...)
	endpoint := dispatch.NewEndpoint[string, Quote](dispatch.Config{
		Source:            Source,
		MaxAge:            cfg.MaxAge,
		NoFallbackStatus:  http.StatusServiceUnavailable,
		NoFallbackMessage: "Unable to fetch real Bitcoin data",
	}, feeds.Table[Quote](d, Source, cfg.MaxAge), chain, nil, d.EndpointOptions()...)
	return &Feed{endpoint: endpoint}
}

func (f *Feed) Endpoint() *dispatch.Endpoint[string, Quote] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/bitcoin", dispatch.Handler(f.endpoint, parse, nil))
}

func parse(c httpx.Context) (dispatch.Request[string], error) {
	return dispatch.Request[string]{
		Query:        "bitcoin",
		Key:          "btc",
		ForceRefresh: feeds.Bool(c, "forceRefresh", false),
	}, nil
}

func validate(q Quote) error {
	return source.Require(
		source.Field("price", q.Price > 0),
		source.Field("source", q.Source != ""),
	)
}

type coinGeckoCoin struct {
	MarketData *struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		PriceChangePercentage24h float64            `json:"price_change_percentage_24h"`
	} `json:"market_data"`
}

func coinGecko(c *httpx.Client) source.Provider[string, Quote] {
	const name = "coingecko"
	return source.NewProvider(name, func(ctx context.Context, coin string) (Quote, error) {
		var body coinGeckoCoin
		err := upstream.Get(ctx, c, name, "/api/v3/coins/"+coin, &body, httpx.WithQuery(map[string]string{
			"localization":   "false",
			"tickers":        "false",
			"market_data":    "true",
			"community_data": "false",
			"developer_data": "false",
			"sparkline":      "false",
		}))
		if err != nil {
			return Quote{}, err
		}
		if body.MarketData == nil || body.MarketData.CurrentPrice["usd"] == 0 {
			return Quote{}, source.Malformed(name, "market_data.current_price.usd missing")
		}
		return Quote{
			Price:            body.MarketData.CurrentPrice["usd"],
			ChangePercent24h: body.MarketData.PriceChangePercentage24h,
			Source:           "CoinGecko",
		}, nil
	})
}

const (
	intradaySeries = "Time Series Crypto (5min)"
	// samplesPerDay is the number of 5 minute intervals in 24 hours.
	samplesPerDay = 288
)

type intraday struct {
	Note   string                       `json:"Note"`
	Series map[string]map[string]string `json:"Time Series Crypto (5min)"`
}

func alphaVantage(c *httpx.Client, key string) source.Provider[string, Quote] {
	const name = "alphavantage"
	return source.NewProvider(name, func(ctx context.Context, _ string) (Quote, error) {
		var body intraday
		err := upstream.Get(ctx, c, name, "/query", &body, httpx.WithQuery(map[string]string{
			"function": "CRYPTO_INTRADAY",
			"symbol":   "BTC",
			"market":   "USD",
			"interval": "5min",
			"apikey":   key,
		}))
		if err != nil {
			return Quote{}, err
		}
		if strings.Contains(body.Note, "API call frequency") {
			return Quote{}, source.RateLimited(name, body.Note)
		}
		if len(body.Series) == 0 {
			return Quote{}, source.Malformed(name, "%s empty", intradaySeries)
		}

		stamps := make([]string, 0, len(body.Series))
		for ts := range body.Series {
			stamps = append(stamps, ts)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(stamps)))

		price, ok := upstream.Float(body.Series[stamps[0]]["4. close"])
		if !ok {
			return Quote{}, source.Malformed(name, "latest sample has no close")
		}
		change := 0.0
		if len(stamps) > samplesPerDay {
			if old, ok := upstream.Float(body.Series[stamps[samplesPerDay]]["4. close"]); ok && old != 0 {
				change = (price - old) / old * 100
			}
		}
		return Quote{Price: price, ChangePercent24h: change, Source: "Alpha Vantage"}, nil
	})
}
