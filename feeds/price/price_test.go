package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/httpx"
)

func noSleep(context.Context, time.Duration) error { return nil }

type upstreams struct {
	gecko, vantage int32
	geckoStatus    int
	vantageBody    string
}

func (u *upstreams) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v3/coins/bitcoin":
		atomic.AddInt32(&u.gecko, 1)
		if u.geckoStatus != 0 {
			w.WriteHeader(u.geckoStatus)
			return
		}
		_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":67123.45},"price_change_percentage_24h":-1.5}}`))
	case "/query":
		atomic.AddInt32(&u.vantage, 1)
		_, _ = w.Write([]byte(u.vantageBody))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFeed(t *testing.T, u *upstreams) *Feed {
	t.Helper()
	srv := httpx.NewTestServerFunc(u.handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.CoinGeckoURL = srv.BaseURL()
	cfg.AlphaVantageURL = srv.BaseURL()
	return New(feeds.Deps{Sleep: noSleep}, cfg)
}

func get(t *testing.T, f *Feed, target string) *httptest.ResponseRecorder {
	t.Helper()
	srv := httpx.NewServer()
	srv.RegisterRoutes(func(a *httpx.App) { f.Mount(a.Group("/api")) })
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestCoinGeckoQuoteIsCached(t *testing.T) {
	u := &upstreams{}
	f := newFeed(t, u)

	rec := get(t, f, "/api/bitcoin")
	require.Equal(t, http.StatusOK, rec.Code)
	var q Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, Quote{Price: 67123.45, ChangePercent24h: -1.5, Source: "CoinGecko"}, q)
	assert.Equal(t, "live", rec.Header().Get(dispatch.HeaderOrigin))

	rec = get(t, f, "/api/bitcoin")
	assert.Equal(t, "cache", rec.Header().Get(dispatch.HeaderOrigin))
	assert.EqualValues(t, 1, u.gecko)

	rec = get(t, f, "/api/bitcoin?forceRefresh=true")
	assert.Equal(t, "live", rec.Header().Get(dispatch.HeaderOrigin))
	assert.EqualValues(t, 2, u.gecko)
}

func intradayBody(samples int, latest, dayAgo float64) string {
	series := make(map[string]map[string]string, samples)
	start := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < samples; i++ {
		ts := start.Add(-time.Duration(i) * 5 * time.Minute).Format("2006-01-02 15:04:05")
		v := 50000.0
		switch i {
		case 0:
			v = latest
		case samplesPerDay:
			v = dayAgo
		}
		series[ts] = map[string]string{"4. close": fmt.Sprintf("%.2f", v)}
	}
	b, _ := json.Marshal(map[string]any{intradaySeries: series})
	return string(b)
}

func TestFallsThroughToAlphaVantage(t *testing.T) {
	u := &upstreams{geckoStatus: http.StatusTooManyRequests, vantageBody: intradayBody(samplesPerDay+1, 110, 100)}
	f := newFeed(t, u)

	out, err := f.Endpoint().Serve(context.Background(), dispatch.Request[string]{Query: "bitcoin", Key: "btc"})
	require.NoError(t, err)
	assert.Equal(t, "Alpha Vantage", out.Payload.Source)
	assert.Equal(t, 110.0, out.Payload.Price)
	assert.InDelta(t, 10.0, out.Payload.ChangePercent24h, 1e-9)
	assert.EqualValues(t, 2, u.gecko)
	assert.EqualValues(t, 1, u.vantage)
}

func TestShortIntradaySeriesHasZeroChange(t *testing.T) {
	u := &upstreams{geckoStatus: http.StatusBadGateway, vantageBody: intradayBody(12, 123.5, 0)}
	f := newFeed(t, u)

	out, err := f.Endpoint().Serve(context.Background(), dispatch.Request[string]{Query: "bitcoin", Key: "btc"})
	require.NoError(t, err)
	assert.Equal(t, 123.5, out.Payload.Price)
	assert.Zero(t, out.Payload.ChangePercent24h)
}

func TestAllProvidersFailingIs503(t *testing.T) {
	u := &upstreams{
		geckoStatus: http.StatusInternalServerError,
		vantageBody: `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`,
	}
	f := newFeed(t, u)

	rec := get(t, f, "/api/bitcoin")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Unable to fetch real Bitcoin data"}`, rec.Body.String())
	assert.EqualValues(t, 2, u.gecko)
	assert.EqualValues(t, 2, u.vantage)
}

func TestValidateRejectsZeroPrice(t *testing.T) {
	assert.Error(t, validate(Quote{Source: "CoinGecko"}))
	assert.Error(t, validate(Quote{Price: 1}))
	assert.NoError(t, validate(Quote{Price: 1, Source: "CoinGecko"}))
}
