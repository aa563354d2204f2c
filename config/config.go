// Package config loads dashd settings from defaults, an optional YAML file and
// DASHD_ environment variables, in increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: server.address is read from
// DASHD_SERVER_ADDRESS.
const EnvPrefix = "DASHD"

type Config struct {
	Server   Server   `mapstructure:"server" yaml:"server"`
	Log      Log      `mapstructure:"log" yaml:"log"`
	Cache    Cache    `mapstructure:"cache" yaml:"cache"`
	Upstream Upstream `mapstructure:"upstream" yaml:"upstream"`
	Sources  Sources  `mapstructure:"sources" yaml:"sources"`
	Keys     Keys     `mapstructure:"keys" yaml:"keys"`
}

type Server struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout"`
	CORSOrigins     []string      `mapstructure:"corsOrigins" yaml:"corsOrigins"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is json or console.
	Format string `mapstructure:"format" yaml:"format"`
	// File, when set, receives logs through a rotating writer instead of stderr.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Cache struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Redis   Redis  `mapstructure:"redis" yaml:"redis"`
}

type Redis struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	Password     string        `mapstructure:"password" yaml:"password"`
	DB           int           `mapstructure:"db" yaml:"db"`
	Namespace    string        `mapstructure:"namespace" yaml:"namespace"`
	PoolSize     int           `mapstructure:"poolSize" yaml:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

type Upstream struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Attempts  int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff   time.Duration `mapstructure:"backoff" yaml:"backoff"`
	UserAgent string        `mapstructure:"userAgent" yaml:"userAgent"`
	// Seed fixes the random source; zero seeds from the clock.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// Source is the part every data source shares.
type Source struct {
	MaxAge  time.Duration `mapstructure:"maxAge" yaml:"maxAge"`
	BaseURL string        `mapstructure:"baseURL" yaml:"baseURL"`
}

type Sources struct {
	Price     PriceSource   `mapstructure:"price" yaml:"price"`
	Indices   IndicesSource `mapstructure:"indices" yaml:"indices"`
	Weather   Source        `mapstructure:"weather" yaml:"weather"`
	Headlines Source        `mapstructure:"headlines" yaml:"headlines"`
	Seismic   Source        `mapstructure:"seismic" yaml:"seismic"`
	Wiki      WikiSource    `mapstructure:"wiki" yaml:"wiki"`
	Orbit     Source        `mapstructure:"orbit" yaml:"orbit"`
	Geocode   Source        `mapstructure:"geocode" yaml:"geocode"`
}

type PriceSource struct {
	Source `mapstructure:",squash" yaml:",inline"`
	// FallbackURL is the base of the secondary quote provider.
	FallbackURL string `mapstructure:"fallbackURL" yaml:"fallbackURL"`
}

type IndicesSource struct {
	Source `mapstructure:",squash" yaml:",inline"`
	Pace   time.Duration `mapstructure:"pace" yaml:"pace"`
}

type WikiSource struct {
	Source   `mapstructure:",squash" yaml:",inline"`
	MaxTiles int `mapstructure:"maxTiles" yaml:"maxTiles"`
}

// Keys are third-party API keys. They are masked by Redacted.
type Keys struct {
	NYT          string `mapstructure:"nyt" yaml:"nyt"`
	WeatherAPI   string `mapstructure:"weatherapi" yaml:"weatherapi"`
	AlphaVantage string `mapstructure:"alphavantage" yaml:"alphavantage"`
	Geocode      string `mapstructure:"geocode" yaml:"geocode"`
}

// Load reads the configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	return Decode(v)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Decode unmarshals v and validates the result.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return errors.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Errorf("log.format: must be json or console, got %q", c.Log.Format)
	}
	if c.Upstream.Attempts < 1 {
		return errors.Errorf("upstream.attempts: must be at least 1, got %d", c.Upstream.Attempts)
	}
	if c.Server.Address == "" {
		return errors.New("server.address: required")
	}
	return nil
}

const mask = "********"

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	hide := func(s *string) {
		if *s != "" {
			*s = mask
		}
	}
	hide(&c.Keys.NYT)
	hide(&c.Keys.WeatherAPI)
	hide(&c.Keys.AlphaVantage)
	hide(&c.Keys.Geocode)
	hide(&c.Cache.Redis.Password)
	return c
}
