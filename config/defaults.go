package config

import (
	"github.com/spf13/viper"

	"github.com/adeilh/tileproxy/feeds/geocode"
	"github.com/adeilh/tileproxy/feeds/headlines"
	"github.com/adeilh/tileproxy/feeds/indices"
	"github.com/adeilh/tileproxy/feeds/orbit"
	"github.com/adeilh/tileproxy/feeds/price"
	"github.com/adeilh/tileproxy/feeds/seismic"
	"github.com/adeilh/tileproxy/feeds/weather"
	"github.com/adeilh/tileproxy/feeds/wiki"
	"github.com/adeilh/tileproxy/httpx"
)

// setDefaults registers every key so environment variables can override keys
// that appear in no file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.corsOrigins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 100)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 14)
	v.SetDefault("log.compress", true)

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.namespace", "dashd")
	v.SetDefault("cache.redis.poolSize", 8)
	v.SetDefault("cache.redis.dialTimeout", "2s")
	v.SetDefault("cache.redis.readTimeout", "1s")
	v.SetDefault("cache.redis.writeTimeout", "1s")

	v.SetDefault("upstream.timeout", "8s")
	v.SetDefault("upstream.attempts", 2)
	v.SetDefault("upstream.backoff", "1s")
	v.SetDefault("upstream.userAgent", httpx.DefaultUserAgent)
	v.SetDefault("upstream.seed", 0)

	p := price.DefaultConfig()
	v.SetDefault("sources.price.maxAge", p.MaxAge)
	v.SetDefault("sources.price.baseURL", p.CoinGeckoURL)
	v.SetDefault("sources.price.fallbackURL", p.AlphaVantageURL)

	i := indices.DefaultConfig()
	v.SetDefault("sources.indices.maxAge", i.MaxAge)
	v.SetDefault("sources.indices.baseURL", i.BaseURL)
	v.SetDefault("sources.indices.pace", i.Pace)

	w := wiki.DefaultConfig()
	v.SetDefault("sources.wiki.maxAge", w.MaxAge)
	v.SetDefault("sources.wiki.baseURL", w.BaseURL)
	v.SetDefault("sources.wiki.maxTiles", w.MaxTiles)

	for name, s := range map[string]struct {
		maxAge  any
		baseURL string
	}{
		"weather":   {weather.DefaultConfig().MaxAge, weather.DefaultConfig().BaseURL},
		"headlines": {headlines.DefaultConfig().MaxAge, headlines.DefaultConfig().BaseURL},
		"seismic":   {seismic.DefaultConfig().MaxAge, seismic.DefaultConfig().BaseURL},
		"orbit":     {orbit.DefaultConfig().MaxAge, orbit.DefaultConfig().BaseURL},
		"geocode":   {geocode.DefaultConfig().MaxAge, geocode.DefaultConfig().BaseURL},
	} {
		v.SetDefault("sources."+name+".maxAge", s.maxAge)
		v.SetDefault("sources."+name+".baseURL", s.baseURL)
	}

	v.SetDefault("keys.nyt", "")
	v.SetDefault("keys.weatherapi", "")
	v.SetDefault("keys.alphavantage", p.AlphaVantageKey)
	v.SetDefault("keys.geocode", "")
}
