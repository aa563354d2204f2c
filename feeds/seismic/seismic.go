// Package seismic serves the latest noteworthy earthquake from the USGS feeds.
package seismic

import (
	"context"
	"time"

	"github.com/adeilh/tileproxy/cache/recent"
	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const Source = "seismic"

const (
	significantHourPath = "/earthquakes/feed/v1.0/summary/significant_hour.geojson"
	dayPath             = "/earthquakes/feed/v1.0/summary/1.0_day.geojson"
	mapURL              = "https://earthquake.usgs.gov/earthquakes/map/"

	// minDayMagnitude filters the day feed down to quakes worth a tile.
	minDayMagnitude = 1.5
	// minFresh is how many not-recently-shown quakes must remain before the
	// recent filter is applied.
	minFresh = 3
	// pickWindow bounds the random pick to the newest candidates.
	pickWindow = 20
)

// isoMillis matches the millisecond ISO-8601 timestamps the tiles parse.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Event is the body of /api/earthquake.
type Event struct {
	Magnitude float64 `json:"magnitude"`
	Location  string  `json:"location"`
	Time      string  `json:"time"`
	TimeAgo   string  `json:"timeAgo"`
	URL       string  `json:"url"`
}

type Config struct {
	MaxAge  time.Duration
	BaseURL string
}

func DefaultConfig() Config {
	return Config{MaxAge: time.Minute, BaseURL: "https://earthquake.usgs.gov"}
}

type Feed struct {
	endpoint *dispatch.Endpoint[struct{}, Event]
	shown    *recent.Set[string]
	rng      fallback.Rand
	now      func() time.Time
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	f := &Feed{shown: recent.New[string](recent.DefaultCapacity), rng: d.Rand, now: d.Now}
	c := d.Client(cfg.BaseURL)
	providers := []source.Provider[struct{}, Event]{
		source.NewProvider("usgs-significant-hour", f.significant(c)),
		source.NewProvider("usgs-day", f.day(c)),
	}
	chain := source.NewChain(Source, validate, providers, d.ChainOptions()...)
	f.endpoint = dispatch.NewEndpoint[struct{}, Event](dispatch.Config{
		Source: Source,
		MaxAge: cfg.MaxAge,
	}, feeds.Table[Event](d, Source, cfg.MaxAge), chain, fallback.SynthesizerFunc[struct{}, Event](f.quiet), d.EndpointOptions()...)
	return f
}

func (f *Feed) Endpoint() *dispatch.Endpoint[struct{}, Event] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/earthquake", dispatch.Handler(f.endpoint, parse, nil))
}

// parse treats any uniqueId as a request for a fresh pick; tiles send one on
// every rotation.
func parse(c httpx.Context) (dispatch.Request[struct{}], error) {
	return dispatch.Request[struct{}]{Key: "latest", ForceRefresh: feeds.Present(c, "uniqueId")}, nil
}

func validate(e Event) error {
	return source.Require(
		source.Field("location", e.Location != ""),
		source.Field("time", e.Time != ""),
		source.Field("url", e.URL != ""),
	)
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  int64    `json:"time"`
		URL   string   `json:"url"`
	} `json:"properties"`
}

func (f *Feed) significant(c *httpx.Client) func(context.Context, struct{}) (Event, error) {
	const name = "usgs-significant-hour"
	return func(ctx context.Context, _ struct{}) (Event, error) {
		var fc featureCollection
		if err := upstream.Get(ctx, c, name, significantHourPath, &fc); err != nil {
			return Event{}, err
		}
		if len(fc.Features) == 0 {
			return Event{}, source.NoData(name, "no significant earthquakes in the past hour")
		}
		return f.event(fc.Features[0]), nil
	}
}

func (f *Feed) day(c *httpx.Client) func(context.Context, struct{}) (Event, error) {
	const name = "usgs-day"
	return func(ctx context.Context, _ struct{}) (Event, error) {
		var fc featureCollection
		if err := upstream.Get(ctx, c, name, dayPath, &fc); err != nil {
			return Event{}, err
		}
		if len(fc.Features) == 0 {
			return Event{}, source.NoData(name, "no earthquakes in the past day")
		}
		q := f.pick(fc.Features)
		f.shown.Add(q.ID)
		return f.event(q), nil
	}
}

// pick chooses a random quake of at least minDayMagnitude, skipping the ones shown
// recently while enough others remain.
func (f *Feed) pick(all []feature) feature {
	candidates := make([]feature, 0, len(all))
	for _, q := range all {
		if q.Properties.Mag != nil && *q.Properties.Mag >= minDayMagnitude {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return all[0]
	}

	fresh := make([]feature, 0, len(candidates))
	for _, q := range candidates {
		if !f.shown.Contains(q.ID) {
			fresh = append(fresh, q)
		}
	}
	if len(fresh) >= minFresh {
		candidates = fresh
	}
	return candidates[f.rng.IntN(min(len(candidates), pickWindow))]
}

func (f *Feed) event(q feature) Event {
	at := time.UnixMilli(q.Properties.Time).UTC()
	var mag float64
	if q.Properties.Mag != nil {
		mag = *q.Properties.Mag
	}
	return Event{
		Magnitude: mag,
		Location:  q.Properties.Place,
		Time:      at.Format(isoMillis),
		TimeAgo:   TimeAgo(at, f.now()),
		URL:       q.Properties.URL,
	}
}

// quiet is served when neither feed has anything to show.
func (f *Feed) quiet(struct{}) (Event, error) {
	return Event{
		Location: "No significant earthquakes have been recorded recently",
		Time:     f.now().UTC().Format(isoMillis),
		URL:      mapURL,
	}, nil
}
