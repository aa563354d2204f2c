package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/httpx"
)

// healthyUpstream answers every API the fallback-backed feeds call.
func healthyUpstream(t *testing.T) *httpx.TestServer {
	t.Helper()
	ts := httpx.NewTestServerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch p := r.URL.Path; {
		case p == "/iss-now.json":
			fmt.Fprint(w, `{"message":"success","timestamp":1700000000,"iss_position":{"latitude":"1.5","longitude":"2.5"}}`)
		case strings.HasSuffix(p, "significant_hour.geojson"):
			fmt.Fprintf(w, `{"features":[{"id":"us1","properties":{"mag":5.2,"place":"near Lima","time":%d,"url":"https://usgs.test/us1"}}]}`,
				time.Now().Add(-time.Hour).UnixMilli())
		case strings.HasPrefix(p, "/svc/topstories/v2/"):
			fmt.Fprint(w, `{"results":[{"title":"T","abstract":"A","url":"https://nyt.test/1","multimedia":[{"url":"https://img.test/1.jpg"}]}]}`)
		case p == "/query":
			fmt.Fprint(w, `{"Global Quote":{"09. change":"1.5","10. change percent":"0.5%"}}`)
		case p == "/v1/current.json":
			fmt.Fprint(w, `{"location":{"name":"Tokyo","country":"Japan"},"current":{"temp_c":18,"humidity":60,"wind_kph":10,"condition":{"text":"Clear"}}}`)
		case p == "/w/api.php":
			fmt.Fprint(w, `{"query":{"recentchanges":[{"title":"Ada Lovelace","timestamp":"2025-03-20T11:00:00Z"}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	t.Cleanup(ts.Close)
	return ts
}

// keys returns the sorted top-level keys of a JSON object, or of the first
// element of a JSON array.
func keys(t *testing.T, raw []byte) []string {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	if arr, ok := v.([]any); ok {
		require.NotEmpty(t, arr)
		v = arr[0]
	}
	obj, ok := v.(map[string]any)
	require.True(t, ok, "not an object: %s", raw)
	out := make([]string, 0, len(obj))
	for k := range obj {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestLiveAndFallbackBodiesShareSchema(t *testing.T) {
	live, err := New(testConfig(t, healthyUpstream(t).BaseURL()), nil, WithSleep(noSleep))
	require.NoError(t, err)
	down := httpx.NewTestServerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	t.Cleanup(down.Close)
	dead, err := New(testConfig(t, down.BaseURL()), nil, WithSleep(noSleep))
	require.NoError(t, err)

	for _, target := range []string{
		"/api/earthquake",
		"/api/iss",
		"/api/news?section=science",
		"/api/stocks",
		"/api/weather?city=Tokyo",
		"/api/wikipedia?uniqueId=t1",
	} {
		t.Run(target, func(t *testing.T) {
			l := get(t, live.Handler(), target)
			require.Equal(t, http.StatusOK, l.Code, l.Body.String())
			assert.Equal(t, string(dispatch.OriginLive), l.Header().Get(dispatch.HeaderOrigin))

			f := get(t, dead.Handler(), target)
			require.Equal(t, http.StatusOK, f.Code, f.Body.String())
			assert.Equal(t, string(dispatch.OriginFallback), f.Header().Get(dispatch.HeaderOrigin))

			assert.Equal(t, keys(t, l.Body.Bytes()), keys(t, f.Body.Bytes()))
		})
	}
}
