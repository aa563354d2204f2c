// Package weather serves current conditions for one of the major cities.
package weather

import (
	"context"
	"math"
	"time"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/internal/geo"
	"github.com/adeilh/tileproxy/source"
)

const Source = "weather"

// Conditions is the body of /api/weather.
type Conditions struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

var conditions = []string{"Sunny", "Partly Cloudy", "Cloudy", "Rainy", "Stormy", "Snowy", "Foggy", "Clear"}

type Config struct {
	MaxAge  time.Duration
	BaseURL string
	APIKey  string
}

func DefaultConfig() Config {
	return Config{MaxAge: 30 * time.Minute, BaseURL: "https://api.weatherapi.com"}
}

type Feed struct {
	endpoint *dispatch.Endpoint[geo.City, Conditions]
	rng      fallback.Rand
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	f := &Feed{rng: d.Rand}
	providers := []source.Provider[geo.City, Conditions]{weatherAPI(d.Client(cfg.BaseURL), cfg.APIKey)}
	chain := source.NewChain(Source, validate, providers, d.ChainOptions()...)
	f.endpoint = dispatch.NewEndpoint[geo.City, Conditions](dispatch.Config{
		Source: Source,
		MaxAge: cfg.MaxAge,
	}, feeds.Table[Conditions](d, Source, cfg.MaxAge), chain, fallback.SynthesizerFunc[geo.City, Conditions](f.synthesize), d.EndpointOptions()...)
	return f
}

func (f *Feed) Endpoint() *dispatch.Endpoint[geo.City, Conditions] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/weather", dispatch.Handler(f.endpoint, f.parse, nil))
}

// parse resolves the city: by name when it is a known city, else from uniqueId so
// a tile keeps its city, else at random.
func (f *Feed) parse(c httpx.Context) (dispatch.Request[geo.City], error) {
	city, ok := geo.Find(c.QueryParam("city"))
	if !ok {
		if id := c.QueryParam("uniqueId"); id != "" {
			city = geo.ForID(id)
		} else {
			city = geo.Random(f.rng.IntN)
		}
	}
	return dispatch.Request[geo.City]{Query: city, Key: city.Key()}, nil
}

func validate(c Conditions) error {
	return source.Require(
		source.Field("location.name", c.City != ""),
		source.Field("current.condition.text", c.Condition != ""),
	)
}

type current struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		Humidity  float64 `json:"humidity"`
		WindKph   float64 `json:"wind_kph"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

func weatherAPI(c *httpx.Client, key string) source.Provider[geo.City, Conditions] {
	const name = "weatherapi"
	return source.NewProvider(name, func(ctx context.Context, city geo.City) (Conditions, error) {
		var body current
		err := upstream.Get(ctx, c, name, "/v1/current.json", &body, httpx.WithQuery(map[string]string{
			"key": key,
			"q":   city.Name,
		}))
		if err != nil {
			return Conditions{}, err
		}
		return Conditions{
			City:        body.Location.Name,
			Country:     body.Location.Country,
			Temperature: body.Current.TempC,
			Condition:   body.Current.Condition.Text,
			Humidity:    body.Current.Humidity,
			WindSpeed:   body.Current.WindKph,
		}, nil
	})
}

// synthesize makes up plausible conditions: warmer towards the equator, with
// random noise on everything.
func (f *Feed) synthesize(city geo.City) (Conditions, error) {
	base := 25 - math.Abs(city.Lat)*0.5
	return Conditions{
		City:        city.Name,
		Country:     city.Country,
		Temperature: fallback.Round(base+fallback.Uniform(f.rng, -5, 5), 1),
		Condition:   conditions[f.rng.IntN(len(conditions))],
		Humidity:    math.Round(fallback.Uniform(f.rng, 40, 80)),
		WindSpeed:   fallback.Round(fallback.Uniform(f.rng, 0, 30), 1),
	}, nil
}
