package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memohai/shopchat/internal/auth"
	"github.com/memohai/shopchat/internal/handlers"
	"github.com/memohai/shopchat/internal/metrics"
)

// Options configures a Server.
type Options struct {
	Addr      string
	JWTSecret string
	BodyLimit string
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

func NewServer(log *slog.Logger, opts Options, registrars ...handlers.Registrar) *Server {
	if log == nil {
		log = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8090"
	}
	bodyLimit := opts.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "32M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.BodyLimit(bodyLimit))
	if opts.Metrics != nil {
		e.Use(requestMetrics(opts.Metrics))
	}
	e.Use(auth.JWTMiddleware(opts.JWTSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	for _, h := range registrars {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

// shouldSkipJWT lists the routes that authenticate differently or not at all.
// The socket verifies its token after the upgrade.
func shouldSkipJWT(path string) bool {
	switch path {
	case "/ping", "/health", "/metrics", "/auth/token", "/socket":
		return true
	}
	return strings.HasPrefix(path, "/media/")
}

func requestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(c.Request().Method, route, strconv.Itoa(status), time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the router for in-process servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.logger.Info("sandbox listening", slog.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
