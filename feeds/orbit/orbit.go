// Package orbit serves the current ground position of the International Space
// Station.
package orbit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const Source = "orbit"

// Position mirrors the Open Notify iss-now document, coordinates as strings.
type Position struct {
	Message     string      `json:"message"`
	Timestamp   int64       `json:"timestamp"`
	ISSPosition Coordinates `json:"iss_position"`
}

type Coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type Config struct {
	MaxAge  time.Duration
	BaseURL string
}

func DefaultConfig() Config {
	return Config{MaxAge: 5 * time.Second, BaseURL: "https://api.open-notify.org"}
}

type Feed struct {
	endpoint *dispatch.Endpoint[struct{}, Position]
	now      func() time.Time
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	f := &Feed{now: d.Now}
	providers := []source.Provider[struct{}, Position]{openNotify(d.Client(cfg.BaseURL))}
	chain := source.NewChain(Source, validate, providers, d.ChainOptions()...)
	f.endpoint = dispatch.NewEndpoint[struct{}, Position](dispatch.Config{
		Source: Source,
		MaxAge: cfg.MaxAge,
	}, feeds.Table[Position](d, Source, cfg.MaxAge), chain, fallback.SynthesizerFunc[struct{}, Position](f.synthesize), d.EndpointOptions()...)
	return f
}

func (f *Feed) Endpoint() *dispatch.Endpoint[struct{}, Position] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/iss", dispatch.Handler(f.endpoint, parse, nil))
}

func parse(httpx.Context) (dispatch.Request[struct{}], error) {
	return dispatch.Request[struct{}]{Key: "now"}, nil
}

func validate(p Position) error {
	_, latOK := upstream.Float(p.ISSPosition.Latitude)
	_, lonOK := upstream.Float(p.ISSPosition.Longitude)
	return source.Require(
		source.Field("message", p.Message == "success"),
		source.Field("iss_position.latitude", latOK),
		source.Field("iss_position.longitude", lonOK),
	)
}

func openNotify(c *httpx.Client) source.Provider[struct{}, Position] {
	const name = "open-notify"
	return source.NewProvider(name, func(ctx context.Context, _ struct{}) (Position, error) {
		var p Position
		if err := upstream.Get(ctx, c, name, "/iss-now.json", &p); err != nil {
			return Position{}, err
		}
		return p, nil
	})
}

const (
	// period is the time the station takes for one orbit.
	period = 92*time.Minute + 41*time.Second
	// inclination bounds the latitudes the ground track reaches.
	inclination = 51.64
)

// Estimate places the station on an idealized ground track for t. It only depends
// on the time of day, so the tile still moves smoothly during an outage.
func Estimate(t time.Time) (lat, lon float64) {
	t = t.UTC()
	sinceMidnight := t.Sub(t.Truncate(24 * time.Hour))
	orbits := float64(sinceMidnight) / float64(period)
	day := sinceMidnight.Hours() / 24

	lat = inclination * math.Sin(2*math.Pi*orbits)
	lon = math.Mod(360*orbits-360*day, 360)
	if lon >= 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return lat, lon
}

func (f *Feed) synthesize(struct{}) (Position, error) {
	now := f.now()
	lat, lon := Estimate(now)
	return Position{
		Message:   "success",
		Timestamp: now.Unix(),
		ISSPosition: Coordinates{
			Latitude:  strconv.FormatFloat(lat, 'f', 4, 64),
			Longitude: strconv.FormatFloat(lon, 'f', 4, 64),
		},
	}, nil
}
