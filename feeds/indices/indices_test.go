package indices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/tileproxy/cache/memory"
	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/httpx"
)

type halfRand struct{}

func (halfRand) IntN(int) int                { return 0 }
func (halfRand) Float64() float64            { return 0.75 }
func (halfRand) Shuffle(int, func(i, j int)) {}

type vantage struct {
	mu      sync.Mutex
	bodies  map[string]string
	symbols []string
}

func (v *vantage) handler(w http.ResponseWriter, r *http.Request) {
	sym := r.URL.Query().Get("symbol")
	v.mu.Lock()
	v.symbols = append(v.symbols, sym)
	body, ok := v.bodies[sym]
	v.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(body))
}

func quoteBody(change, pct string) string {
	return `{"Global Quote":{"01. symbol":"X","09. change":"` + change + `","10. change percent":"` + pct + `"}}`
}

func newFeed(t *testing.T, v *vantage, pace time.Duration) (*Feed, *memory.Store) {
	t.Helper()
	srv := httpx.NewTestServerFunc(v.handler)
	t.Cleanup(srv.Close)
	store := memory.NewStore()
	cfg := DefaultConfig()
	cfg.BaseURL = srv.BaseURL()
	cfg.Pace = pace
	return New(feeds.Deps{Store: store, Rand: halfRand{}}, cfg), store
}

func TestAllIndicesLiveAreCached(t *testing.T) {
	v := &vantage{bodies: map[string]string{
		"SPY": quoteBody("4.12", "0.7800%"),
		"QQQ": quoteBody("-2.50", "-0.5123%"),
		"DIA": quoteBody("", "1.25%"),
	}}
	f, store := newFeed(t, v, 0)

	srv := httpx.NewServer()
	srv.RegisterRoutes(func(a *httpx.App) { f.Mount(a.Group("/api")) })
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stocks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "live", rec.Header().Get(dispatch.HeaderOrigin))

	var quotes []Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quotes))
	assert.Equal(t, []Quote{
		{Symbol: "^GSPC", Name: "S&P 500", Change: 4.12, ChangePercent: 0.78},
		{Symbol: "^IXIC", Name: "NASDAQ", Change: -2.5, ChangePercent: -0.5123},
		{Symbol: "^DJI", Name: "Dow", Change: 0, ChangePercent: 1.25},
	}, quotes)
	assert.Equal(t, []string{"SPY", "QQQ", "DIA"}, v.symbols)
	assert.Equal(t, 1, store.Len())
}

func TestFailedIndexIsSynthesizedAndBoardNotCached(t *testing.T) {
	v := &vantage{bodies: map[string]string{
		"SPY": quoteBody("4.12", "0.78%"),
		"DIA": `{"Note":"Our standard API call frequency is 5 calls per minute"}`,
	}}
	f, store := newFeed(t, v, 0)

	out, err := f.Endpoint().Serve(context.Background(), dispatch.Request[struct{}]{Key: "all"})
	require.NoError(t, err)
	assert.Equal(t, dispatch.OriginPartial, out.Origin)
	require.Len(t, out.Payload.Quotes, 3)
	assert.Equal(t, 4.12, out.Payload.Quotes[0].Change)
	assert.Equal(t, Quote{Symbol: "^IXIC", Name: "NASDAQ", Change: 1, ChangePercent: 1}, out.Payload.Quotes[1])
	assert.Equal(t, Quote{Symbol: "^DJI", Name: "Dow", Change: 1, ChangePercent: 1}, out.Payload.Quotes[2])
	assert.Zero(t, store.Len())
}

func TestEveryIndexFailingUsesFallback(t *testing.T) {
	v := &vantage{bodies: map[string]string{}}
	f, _ := newFeed(t, v, 0)

	out, err := f.Endpoint().Serve(context.Background(), dispatch.Request[struct{}]{Key: "all"})
	require.NoError(t, err)
	assert.Equal(t, dispatch.OriginFallback, out.Origin)
	require.Len(t, out.Payload.Quotes, 3)
	for i, q := range out.Payload.Quotes {
		assert.Equal(t, Tracked[i].Symbol, q.Symbol)
		assert.InDelta(t, 0, q.Change, 2)
	}
	assert.Len(t, v.symbols, 3, "a single attempt per index")
}

func TestQuoteCallsArePaced(t *testing.T) {
	v := &vantage{bodies: map[string]string{
		"SPY": quoteBody("1", "1%"),
		"QQQ": quoteBody("1", "1%"),
		"DIA": quoteBody("1", "1%"),
	}}
	f, _ := newFeed(t, v, 30*time.Millisecond)

	start := time.Now()
	_, err := f.Endpoint().Serve(context.Background(), dispatch.Request[struct{}]{Key: "all"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestEachQuoteGetsItsOwnTimeout(t *testing.T) {
	v := &vantage{bodies: map[string]string{
		"SPY": quoteBody("1", "1%"),
		"QQQ": quoteBody("2", "2%"),
		"DIA": quoteBody("3", "3%"),
	}}
	srv := httpx.NewTestServerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(40 * time.Millisecond)
		v.handler(w, r)
	})
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.BaseURL()
	cfg.Pace = 30 * time.Millisecond
	// the three paced calls together take well over one call's timeout
	f := New(feeds.Deps{Rand: halfRand{}, Timeout: 100 * time.Millisecond}, cfg)

	out, err := f.Endpoint().Serve(context.Background(), dispatch.Request[struct{}]{Key: "all"})
	require.NoError(t, err)
	assert.Equal(t, dispatch.OriginLive, out.Origin)
	require.Len(t, out.Payload.Quotes, 3)
	assert.Equal(t, 3.0, out.Payload.Quotes[2].Change)
	assert.Equal(t, 340*time.Millisecond, f.boardTimeout(cfg.Pace))
}
