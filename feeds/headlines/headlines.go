// Package headlines serves one NYT Top Stories article per request, rotating
// through a per-section cache of articles that carry a photo.
package headlines

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adeilh/tileproxy/cache/recent"
	"github.com/adeilh/tileproxy/dispatch"
	"github.com/adeilh/tileproxy/fallback"
	"github.com/adeilh/tileproxy/feeds"
	"github.com/adeilh/tileproxy/feeds/upstream"
	"github.com/adeilh/tileproxy/httpx"
	"github.com/adeilh/tileproxy/source"
)

const (
	Source    = "headlines"
	publisher = "The New York Times"
)

// Article is one cached story.
type Article struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	URL      string `json:"url"`
	PhotoURL string `json:"photoUrl"`
}

// Batch is what gets cached per section: the shuffled articles of the requested
// section plus one random extra section.
type Batch struct {
	Articles []Article `json:"articles"`
}

// Headline is the body of /api/news.
type Headline struct {
	Section     string `json:"section"`
	Headline    string `json:"headline"`
	Source      string `json:"source"`
	SectionName string `json:"sectionName"`
	PhotoURL    string `json:"photo_url"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
}

type Query struct {
	Section           string
	PreventDuplicates bool
}

type Config struct {
	MaxAge  time.Duration
	BaseURL string
	APIKey  string
}

func DefaultConfig() Config {
	return Config{MaxAge: 10 * time.Minute, BaseURL: "https://api.nytimes.com"}
}

type Feed struct {
	endpoint *dispatch.Endpoint[Query, Batch]
	client   *httpx.Client
	key      string
	rng      fallback.Rand

	mu    sync.Mutex
	shown map[string]*recent.Set[string]
	pools map[string]*fallback.Pool[Article]
}

func New(d feeds.Deps, cfg Config) *Feed {
	d = d.WithDefaults()
	f := &Feed{
		client: d.Client(cfg.BaseURL),
		key:    cfg.APIKey,
		rng:    d.Rand,
		shown:  make(map[string]*recent.Set[string]),
		pools:  make(map[string]*fallback.Pool[Article]),
	}
	providers := []source.Provider[Query, Batch]{source.NewProvider("nyt", f.topStories)}
	chain := source.NewChain(Source, validate, providers, d.ChainOptions()...)
	f.endpoint = dispatch.NewEndpoint[Query, Batch](dispatch.Config{
		Source: Source,
		MaxAge: cfg.MaxAge,
	}, feeds.Table[Batch](d, Source, cfg.MaxAge), chain, fallback.SynthesizerFunc[Query, Batch](f.synthesize), d.EndpointOptions()...)
	return f
}

func (f *Feed) Endpoint() *dispatch.Endpoint[Query, Batch] { return f.endpoint }

func (f *Feed) Mount(r *httpx.Router) {
	r.GET("/news", dispatch.Handler(f.endpoint, f.parse, f.render))
}

// parse picks a random section when the requested one is missing or unknown.
func (f *Feed) parse(c httpx.Context) (dispatch.Request[Query], error) {
	section := c.QueryParam("section")
	if !validSection(section) {
		section = f.randomSection()
	}
	return dispatch.Request[Query]{
		Query:        Query{Section: section, PreventDuplicates: feeds.Bool(c, "preventDuplicates", true)},
		Key:          section,
		ForceRefresh: feeds.Bool(c, "forceRefresh", false),
	}, nil
}

func (f *Feed) randomSection() string { return Sections[f.rng.IntN(len(Sections))] }

func validate(b Batch) error {
	return source.Require(source.Field("articles", len(b.Articles) > 0))
}

type topStories struct {
	Results []struct {
		Title      string `json:"title"`
		Abstract   string `json:"abstract"`
		URL        string `json:"url"`
		Multimedia []struct {
			URL string `json:"url"`
		} `json:"multimedia"`
	} `json:"results"`
}

// topStories reads the requested section and one random extra section at the same
// time. Either may fail on its own; the batch only fails when both come back with
// nothing usable.
func (f *Feed) topStories(ctx context.Context, q Query) (Batch, error) {
	const name = "nyt"
	sections := [2]string{q.Section, f.randomSection()}
	var found [2][]Article

	var g errgroup.Group
	for i, section := range sections {
		g.Go(func() error {
			var body topStories
			err := upstream.Get(ctx, f.client, name, "/svc/topstories/v2/"+section+".json", &body,
				httpx.WithQuery(map[string]string{"api-key": f.key}))
			if err != nil {
				return err
			}
			for _, r := range body.Results {
				if len(r.Multimedia) == 0 || r.Title == "" || r.URL == "" {
					continue
				}
				found[i] = append(found[i], Article{
					Title:    r.Title,
					Abstract: r.Abstract,
					URL:      r.URL,
					PhotoURL: r.Multimedia[0].URL,
				})
			}
			return nil
		})
	}
	err := g.Wait()

	seen := make(map[string]struct{})
	var all []Article
	for _, list := range found {
		for _, a := range list {
			if _, dup := seen[a.URL]; dup {
				continue
			}
			seen[a.URL] = struct{}{}
			all = append(all, a)
		}
	}
	if len(all) == 0 {
		if err != nil {
			return Batch{}, err
		}
		return Batch{}, source.NoData(name, "no articles with images in %s or %s", sections[0], sections[1])
	}

	for range 2 {
		f.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	}
	return Batch{Articles: all}, nil
}

// synthesize rotates through the canned articles, each section on its own.
func (f *Feed) synthesize(q Query) (Batch, error) {
	a, ok := f.poolFor(q.Section).Pick()
	if !ok {
		return Batch{}, fallback.ErrEmptyPool
	}
	return Batch{Articles: []Article{a}}, nil
}

// render picks one article from the batch. With PreventDuplicates the last few
// links shown for the section are skipped while alternatives exist.
func (f *Feed) render(q Query, out dispatch.Outcome[Batch]) (any, error) {
	articles := out.Payload.Articles
	if len(articles) == 0 {
		return nil, source.Missing("articles")
	}

	candidates := articles
	var shown *recent.Set[string]
	if q.PreventDuplicates {
		shown = f.shownFor(q.Section)
		var fresh []Article
		for _, a := range articles {
			if !shown.Contains(a.URL) {
				fresh = append(fresh, a)
			}
		}
		if len(fresh) > 0 {
			candidates = fresh
		}
	}
	a := candidates[f.rng.IntN(len(candidates))]
	if shown != nil {
		shown.Add(a.URL)
	}

	return Headline{
		Section:     q.Section,
		Headline:    a.Title,
		Source:      publisher,
		SectionName: SectionName(q.Section),
		PhotoURL:    a.PhotoURL,
		Link:        a.URL,
		Snippet:     a.Abstract,
	}, nil
}

func (f *Feed) shownFor(section string) *recent.Set[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shown[section]
	if !ok {
		s = recent.New[string](recent.DefaultCapacity)
		f.shown[section] = s
	}
	return s
}

func (f *Feed) poolFor(section string) *fallback.Pool[Article] {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[section]
	if !ok {
		p = fallback.NewPool(canned, f.rng, recent.DefaultCapacity)
		f.pools[section] = p
	}
	return p
}
