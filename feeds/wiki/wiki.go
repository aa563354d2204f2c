// Package wiki serves recently edited Wikipedia articles, handing each tile its own
// article from the cached list.
package wiki

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const (
	Source      = "wiki"
	articleBase = "https://en.wikipedia.org/wiki/"
)

// Update is the body of /api/wikipedia.
type Update struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Timestamp string `json:"timestamp"`
}

// Changes is the cached list of recent edits.
type Changes struct {
	Updates []Update `json:"updates"`
}

type Query struct {
	TileID            string
	PreventDuplicates bool
}

type Config struct {
	MaxAge  time.Duration
	BaseURL string
	// MaxTiles bounds how many tile assignments are remembered.
	MaxTiles int
}

func DefaultConfig() Config {
	return Config{MaxAge: 2 * time.Minute, BaseURL: "https://en.wikipedia.org", MaxTiles: 64}
}

var topics = []string{
	"Artificial intelligence",
	"Mars rover",
	"Quantum computing",
	"Solar System",
	"Black hole",
	"Climate change",
}

type Feed struct {
	endpoint *dispatch.Endpoint[Query, Changes]
	tiles    *assignments
	topics   *fallback.Pool[int]
	rng      fallback.Rand
	now      func() time.Time
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	f := &Feed{tiles: newAssignments(cfg.MaxTiles), rng: d.Rand, now: d.Now}
	order := make([]int, len(topics))
	for i := range order {
		order[i] = i
	}
	f.topics = fallback.NewPool(order, d.Rand, 0)
	providers := []source.Provider[Query, Changes]{recentChanges(d.Client(cfg.BaseURL))}
	chain := source.NewChain(Source, validate, providers, d.ChainOptions()...)
	f.endpoint = dispatch.NewEndpoint[Query, Changes](dispatch.Config{
		Source: Source,
		MaxAge: cfg.MaxAge,
	}, feeds.Table[Changes](d, Source, cfg.MaxAge), chain, fallback.SynthesizerFunc[Query, Changes](f.synthesize), d.EndpointOptions()...)
	return f
}

func (f *Feed) Endpoint() *dispatch.Endpoint[Query, Changes] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/wikipedia", dispatch.Handler(f.endpoint, parse, f.render))
}

func parse(c httpx.Context) (dispatch.Request[Query], error) {
	id := c.QueryParam("uniqueId")
	if id == "" {
		id = "default"
	}
	return dispatch.Request[Query]{
		Query:        Query{TileID: id, PreventDuplicates: feeds.Bool(c, "preventDuplicates", true)},
		Key:          "recent",
		ForceRefresh: feeds.Bool(c, "refresh", false),
	}, nil
}

func validate(c Changes) error {
	return source.Require(source.Field("recentchanges", len(c.Updates) > 0))
}

var boring = []*regexp.Regexp{
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^\d{1,2} (January|February|March|April|May|June|July|August|September|October|November|December)`),
	regexp.MustCompile(`^List of`),
	regexp.MustCompile(`^(Draft|Wikipedia|Template|Category|Portal|File|Help|Module):`),
}

// Interesting reports whether a title is worth a tile: not a bare number, a date,
// a list, a disambiguation page or a non-article namespace.
func Interesting(title string) bool {
	if strings.Contains(title, "(disambiguation)") {
		return false
	}
	for _, re := range boring {
		if re.MatchString(title) {
			return false
		}
	}
	return true
}

// Link builds the article URL for a title.
func Link(title string) string {
	return articleBase + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

type recentChangesResponse struct {
	Query struct {
		RecentChanges []struct {
			Title     string `json:"title"`
			Timestamp string `json:"timestamp"`
		} `json:"recentchanges"`
	} `json:"query"`
}

func recentChanges(c *httpx.Client) source.Provider[Query, Changes] {
	const name = "mediawiki"
	return source.NewProvider(name, func(ctx context.Context, _ Query) (Changes, error) {
		var body recentChangesResponse
		err := upstream.Get(ctx, c, name, "/w/api.php", &body, httpx.WithQuery(map[string]string{
			"action":      "query",
			"list":        "recentchanges",
			"rcnamespace": "0",
			"rclimit":     "50",
			"rctype":      "edit",
			"rcshow":      "!minor|!bot|!redirect",
			"rcprop":      "title|timestamp",
			"format":      "json",
			"origin":      "*",
		}))
		if err != nil {
			return Changes{}, err
		}
		var out Changes
		for _, rc := range body.Query.RecentChanges {
			if rc.Title == "" || !Interesting(rc.Title) {
				continue
			}
			out.Updates = append(out.Updates, Update{Title: rc.Title, Link: Link(rc.Title), Timestamp: rc.Timestamp})
		}
		if len(out.Updates) == 0 {
			return Changes{}, source.NoData(name, "no interesting edits among %d changes", len(body.Query.RecentChanges))
		}
		return out, nil
	})
}

func (f *Feed) synthesize(Query) (Changes, error) {
	ts := f.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	out := Changes{Updates: make([]Update, 0, len(topics))}
	for _, t := range topics {
		out.Updates = append(out.Updates, Update{Title: t, Link: Link(t), Timestamp: ts})
	}
	return out, nil
}

// freshPick bounds where a newly fetched list hands out its first assignments.
const freshPick = 10

// render chooses the update for a tile. Topic lists rotate through the pool and
// leave assignments alone. A list that was just fetched gives the tile the first
// entry no other tile holds. From cache a tile keeps its entry;
// a tile without one gets an unassigned entry when PreventDuplicates is set, or a
// random one.
func (f *Feed) render(q Query, out dispatch.Outcome[Changes]) (any, error) {
	updates := out.Payload.Updates
	if len(updates) == 0 {
		return nil, source.Missing("updates")
	}

	if out.Origin == dispatch.OriginFallback {
		if i, ok := f.topics.Pick(); ok && i < len(updates) {
			return updates[i], nil
		}
		return updates[f.rng.IntN(len(updates))], nil
	}

	var idx int
	if out.Origin != dispatch.OriginCache {
		idx = f.tiles.firstFree(q.TileID, min(len(updates), freshPick))
	} else {
		if held, ok := f.tiles.get(q.TileID); ok && held < len(updates) {
			return updates[held], nil
		}
		idx = f.rng.IntN(len(updates))
		if q.PreventDuplicates {
			if free := f.tiles.free(q.TileID, len(updates)); len(free) > 0 {
				idx = free[f.rng.IntN(len(free))]
			}
		}
	}
	f.tiles.set(q.TileID, idx)
	return updates[idx], nil
}
