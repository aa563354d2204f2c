package geocode

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/httpx"
)

type mapsCo struct {
	mu     sync.Mutex
	asked  []string
	answer func(lat, lon string) (int, string)
}

func (m *mapsCo) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m.mu.Lock()
	m.asked = append(m.asked, q.Get("lat")+","+q.Get("lon"))
	m.mu.Unlock()
	code, body := m.answer(q.Get("lat"), q.Get("lon"))
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func serve(t *testing.T, m *mapsCo, target string) *httptest.ResponseRecorder {
	t.Helper()
	upstream := httpx.NewTestServerFunc(m.handler)
	t.Cleanup(upstream.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = upstream.BaseURL()
	f := New(feeds.Deps{}, cfg)

	srv := httpx.NewServer()
	srv.RegisterRoutes(func(a *httpx.App) { f.Mount(a.Group("/api")) })
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestExactCoordinatesPassThrough(t *testing.T) {
	m := &mapsCo{answer: func(string, string) (int, string) {
		return http.StatusOK, `{"display_name":"Westminster, London","address":{"city":"London"}}`
	}}
	rec := serve(t, m, "/api/geocode?lat=51.5074&lon=-0.1278")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"display_name":"Westminster, London","address":{"city":"London"}}`, rec.Body.String())
	assert.Equal(t, []string{"51.5074,-0.1278"}, m.asked)
	assert.Equal(t, "live", rec.Header().Get(dispatch.HeaderOrigin))
}

func TestMissRetriesWithRoundedCoordinates(t *testing.T) {
	m := &mapsCo{answer: func(lat, _ string) (int, string) {
		if lat == "51.51" {
			return http.StatusOK, `{"display_name":"London"}`
		}
		return http.StatusOK, `{"error":"Unable to geocode"}`
	}}
	rec := serve(t, m, "/api/geocode?lat=51.5074&lon=-0.1278")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"display_name":"London"}`, rec.Body.String())
	assert.Equal(t, []string{"51.5074,-0.1278", "51.51,-0.13"}, m.asked)
}

func TestBothMissesIs500WithCoordinates(t *testing.T) {
	m := &mapsCo{answer: func(string, string) (int, string) {
		return http.StatusNotFound, `{"error":"Unable to geocode"}`
	}}
	rec := serve(t, m, "/api/geocode?lat=0.001&lon=0.002")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Unable to geocode location","coordinates":{"lat":"0.001","lon":"0.002"}}`, rec.Body.String())
	assert.Equal(t, []string{"0.001,0.002", "0,0"}, m.asked)
}

func TestMissingCoordinatesIs400(t *testing.T) {
	m := &mapsCo{answer: func(string, string) (int, string) { return http.StatusOK, `{}` }}
	for _, target := range []string{"/api/geocode", "/api/geocode?lat=1", "/api/geocode?lon=1"} {
		rec := serve(t, m, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.JSONEq(t, `{"error":"Missing coordinates"}`, rec.Body.String())
	}
	assert.Empty(t, m.asked)
}

func TestRounded(t *testing.T) {
	q, err := rounded(Query{Lat: "51.5074", Lon: "-0.1278"})
	require.NoError(t, err)
	assert.Equal(t, Query{Lat: "51.51", Lon: "-0.13"}, q)

	_, err = rounded(Query{Lat: "north", Lon: "1"})
	assert.Error(t, err)
}
