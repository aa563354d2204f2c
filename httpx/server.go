package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Server struct {
	app      *App
	address  string
	srv      *http.Server
	shutdown time.Duration
	logger   *zap.Logger
}

type RouteRegistrar func(*App)

type StartOption func(*Server)

func WithShutdownTimeout(d time.Duration) StartOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdown = d
		}
	}
}

func NewServer(opts ...ServerOption) *Server {
	cfg := defaultServerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	app := New()
	e := app.e
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = echo.HTTPErrorHandler(cfg.ErrorHandler)
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	for _, mw := range cfg.Middlewares {
		e.Use(mw)
	}
	if cfg.Logger != nil {
		e.Use(LoggerMiddleware(cfg.Logger))
	}
	if cfg.CORS != nil {
		e.Use(CORSMiddleware(cfg.CORS))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		app:      app,
		address:  cfg.Address,
		shutdown: 5 * time.Second,
		logger:   logger.Named("server"),
	}
}

func (s *Server) RegisterRoutes(reg RouteRegistrar) {
	if reg != nil {
		reg(s.app)
	}
}

func (s *Server) Handler() http.Handler {
	return s.app.e
}

func (s *Server) Start(ctx context.Context, opts ...StartOption) error {
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.srv = &http.Server{
		Addr:         s.address,
		Handler:      s.app.e,
		ReadTimeout:  s.app.e.Server.ReadTimeout,
		WriteTimeout: s.app.e.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("address", s.address))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		s.logger.Info("shutting down", zap.Duration("timeout", s.shutdown))
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// defaultHTTPErrorHandler renders {"error": msg}. A map message is sent as-is so
// handlers can attach detail fields next to "error".
func defaultHTTPErrorHandler(err error, c echo.Context) {
	code := StatusInternalError
	var body any = map[string]any{"error": http.StatusText(code)}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			body = map[string]any{"error": m}
		case map[string]any:
			body = m
		case error:
			body = map[string]any{"error": m.Error()}
		case nil:
			body = map[string]any{"error": http.StatusText(code)}
		default:
			body = map[string]any{"error": fmt.Sprint(m)}
		}
	}
	if c.Request().Method == http.MethodHead {
		if !c.Response().Committed {
			_ = c.NoContent(code)
		}
		return
	}
	if !c.Response().Committed {
		_ = c.JSON(code, body)
	}
}
