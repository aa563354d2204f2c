// Package geocode reverse-geocodes coordinates, passing the provider's document
// through untouched.
package geocode

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const Source = "geocode"

// Place is the provider's reverse-geocoding document.
type Place map[string]any

type Query struct {
	Lat string
	Lon string
}

type Config struct {
	MaxAge  time.Duration
	BaseURL string
	APIKey  string
}

func DefaultConfig() Config {
	return Config{MaxAge: 24 * time.Hour, BaseURL: "https://geocode.maps.co"}
}

type Feed struct {
	endpoint *dispatch.Endpoint[Query, Place]
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	c := d.Client(cfg.BaseURL)
	providers := []source.Provider[Query, Place]{
		reverse("maps.co", c, cfg.APIKey, exact),
		reverse("maps.co-rounded", c, cfg.APIKey, rounded),
	}
	// The second provider is the retry: same service, coarser coordinates.
	chain := source.NewChain(Source, validate, providers, d.ChainOptions(source.WithAttempts(1))...)
	endpoint := dispatch.NewEndpoint[Query, Place](dispatch.Config{
		Source:            Source,
		MaxAge:            cfg.MaxAge,
		NoFallbackStatus:  http.StatusInternalServerError,
		NoFallbackMessage: "Unable to geocode location",
		NoFallbackDetails: coordinates,
	}, feeds.Table[Place](d, Source, cfg.MaxAge), chain, nil, d.EndpointOptions()...)
	return &Feed{endpoint: endpoint}
}

func (f *Feed) Endpoint() *dispatch.Endpoint[Query, Place] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/geocode", dispatch.Handler(f.endpoint, parse, nil))
}

func parse(c httpx.Context) (dispatch.Request[Query], error) {
	q := Query{Lat: c.QueryParam("lat"), Lon: c.QueryParam("lon")}
	if q.Lat == "" || q.Lon == "" {
		return dispatch.Request[Query]{}, dispatch.BadRequest("Missing coordinates", nil)
	}
	return dispatch.Request[Query]{Query: q, Key: q.Lat + "," + q.Lon}, nil
}

// coordinates echoes the requested point back in the error body.
func coordinates(key string) map[string]any {
	lat, lon, _ := strings.Cut(key, ",")
	return map[string]any{"coordinates": map[string]string{"lat": lat, "lon": lon}}
}

func validate(p Place) error {
	return source.Require(source.Field("place", len(p) > 0))
}

func exact(q Query) (Query, error) { return q, nil }

// rounded snaps the point to two decimals; the provider often knows a nearby
// rounded point when it has nothing for the exact one.
func rounded(q Query) (Query, error) {
	lat, err := cast.ToFloat64E(q.Lat)
	if err != nil {
		return q, err
	}
	lon, err := cast.ToFloat64E(q.Lon)
	if err != nil {
		return q, err
	}
	return Query{
		Lat: strconv.FormatFloat(fallback.Round(lat, 2), 'f', -1, 64),
		Lon: strconv.FormatFloat(fallback.Round(lon, 2), 'f', -1, 64),
	}, nil
}

func reverse(name string, c *httpx.Client, key string, point func(Query) (Query, error)) source.Provider[Query, Place] {
	return source.NewProvider(name, func(ctx context.Context, q Query) (Place, error) {
		p, err := point(q)
		if err != nil {
			return nil, source.Malformed(name, "coordinates %s,%s: %v", q.Lat, q.Lon, err)
		}
		var body Place
		err = upstream.Get(ctx, c, name, "/reverse", &body, httpx.WithQuery(map[string]string{
			"lat":     p.Lat,
			"lon":     p.Lon,
			"api_key": key,
		}))
		if err != nil {
			return nil, err
		}
		if msg, ok := body["error"]; ok {
			return nil, source.NoData(name, "%s,%s: %v", p.Lat, p.Lon, msg)
		}
		return body, nil
	})
}
