package httpx

import (
	"time"

	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// HTTPErrorHandler is a function that handles errors during request processing.
type HTTPErrorHandler func(error, Context)

type ServerOptions struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Middlewares  []MiddlewareFunc
	ErrorHandler HTTPErrorHandler
	CORS         *middleware.CORSConfig
	Logger       *zap.Logger
}

type ServerOption func(*ServerOptions)

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		Address:      ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		Middlewares:  []MiddlewareFunc{RecoverMiddleware(), RequestIDMiddleware()},
		ErrorHandler: defaultHTTPErrorHandler,
	}
}

func WithAddress(addr string) ServerOption {
	return func(o *ServerOptions) {
		if addr != "" {
			o.Address = addr
		}
	}
}

func WithTimeouts(read, write time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if read > 0 {
			o.ReadTimeout = read
		}
		if write > 0 {
			o.WriteTimeout = write
		}
	}
}

// WithCORS enables CORS middleware using the provided configuration; if cfg is nil, the default config is used.
func WithCORS(cfg *middleware.CORSConfig) ServerOption {
	return func(o *ServerOptions) {
		if cfg == nil {
			def := middleware.DefaultCORSConfig
			o.CORS = &def
			return
		}
		o.CORS = cfg
	}
}

// WithLogger enables zap access logging and error logging.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

type ClientOption func(*ClientOptions)

func defaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout: 10 * time.Second,
		Headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": DefaultUserAgent,
		},
	}
}

// DefaultUserAgent identifies outbound requests; some public APIs reject empty agents.
const DefaultUserAgent = "Mozilla/5.0 Dashboard App"

func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		if url != "" {
			o.BaseURL = url
		}
	}
}

func WithClientTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithHeaders merges headers into the client defaults.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if len(headers) == 0 {
			return
		}
		merged := make(map[string]string, len(o.Headers)+len(headers))
		for k, v := range o.Headers {
			merged[k] = v
		}
		for k, v := range headers {
			merged[k] = v
		}
		o.Headers = merged
	}
}
