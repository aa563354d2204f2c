package orbit

import (
	"context"
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

func newFeed(t *testing.T, h http.HandlerFunc, now time.Time) *Feed {
	t.Helper()
	srv := httpx.NewTestServerFunc(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.BaseURL()
	return New(feeds.Deps{
		Now:   func() time.Time { return now },
		Sleep: func(context.Context, time.Duration) error { return nil },
	}, cfg)
}

func TestLivePositionPassesThrough(t *testing.T) {
	var hits int32
	f := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/iss-now.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"success","timestamp":1742472000,"iss_position":{"latitude":"-12.3456","longitude":"101.0001"}}`))
	}, time.Now())

	srv := httpx.NewServer()
	srv.RegisterRoutes(func(a *httpx.App) { f.Mount(a.Group("/api")) })
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/iss", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"success","timestamp":1742472000,"iss_position":{"latitude":"-12.3456","longitude":"101.0001"}}`, rec.Body.String())
	assert.EqualValues(t, 1, hits)
}

func TestOutageEstimatesFromTimeOfDay(t *testing.T) {
	midnight := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	f := newFeed(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":"failure"}`))
	}, midnight)

	out, err := f.Endpoint().Serve(context.Background(), dispatch.Request[struct{}]{Key: "now"})
	require.NoError(t, err)
	assert.Equal(t, dispatch.OriginFallback, out.Origin)
	assert.Equal(t, Position{
		Message:     "success",
		Timestamp:   midnight.Unix(),
		ISSPosition: Coordinates{Latitude: "0.0000", Longitude: "0.0000"},
	}, out.Payload)
}

func TestEstimateStaysOnTrack(t *testing.T) {
	day := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	for m := 0; m < 24*60; m += 7 {
		at := day.Add(time.Duration(m) * time.Minute)
		lat, lon := Estimate(at)
		assert.LessOrEqual(t, lat, inclination)
		assert.GreaterOrEqual(t, lat, -inclination)
		assert.GreaterOrEqual(t, lon, -180.0)
		assert.Less(t, lon, 180.0)

		lat2, lon2 := Estimate(at.AddDate(0, 0, 3))
		assert.Equal(t, lat, lat2, "depends only on time of day")
		assert.Equal(t, lon, lon2)
	}

	lat, _ := Estimate(day.Add(period / 4))
	assert.InDelta(t, inclination, lat, 1e-9)
}
