package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/memohai/shopchat/internal/auth"
	"github.com/memohai/shopchat/internal/channel"
	"github.com/memohai/shopchat/internal/channel/adapters/websocket"
	"github.com/memohai/shopchat/internal/config"
	"github.com/memohai/shopchat/internal/conversation"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/metrics"
	"github.com/memohai/shopchat/internal/orderref"
	"github.com/memohai/shopchat/internal/session"
	"github.com/memohai/shopchat/internal/shopapi"
)

// metricsAddr is the --metrics-addr flag value; empty falls back to metrics.addr.
type metricsAddr string

func newChatCommand(source func() configSource) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the shop conversation in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runApp(source(),
				fx.Supply(metricsAddr(addr)),
				fx.Provide(
					provideTokenStore,
					provideAPIClient,
					provideChannel,
					provideAttachments,
					provideOrderResolver,
					provideCoordinator,
				),
				fx.Invoke(startMetricsServer, startChat),
			)
		},
	}
	cmd.Flags().StringVar(&addr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func provideTokenStore(log *slog.Logger, cfg config.Config) (*auth.Store, error) {
	return auth.NewStore(log, auth.StoreOptions{
		Token:     cfg.Auth.Token,
		TokenFile: cfg.Auth.TokenFile,
	})
}

func provideAPIClient(log *slog.Logger, cfg config.Config, tokens *auth.Store) (*shopapi.Client, error) {
	return shopapi.NewClient(log, cfg.API.BaseURL, tokens, shopapi.WithTimeout(cfg.API.Timeout.Std()))
}

func provideChannel(log *slog.Logger, cfg config.Config, m *metrics.Metrics) (*channel.Controller, error) {
	dialer, err := websocket.NewDialer(log, cfg.Socket.URL)
	if err != nil {
		return nil, fmt.Errorf("init socket dialer: %w", err)
	}
	return channel.NewController(log, dialer,
		channel.WithConnectTimeout(cfg.Socket.ConnectTimeout.Std()),
		channel.WithRecorder(m),
	), nil
}

func provideAttachments(log *slog.Logger, cfg config.Config, client *shopapi.Client, m *metrics.Metrics) *media.Pipeline {
	return media.NewPipeline(log, media.NewFileSource(cfg.Media.MaxBytes), client, media.WithRecorder(m))
}

func provideOrderResolver(log *slog.Logger, client *shopapi.Client, m *metrics.Metrics) *orderref.Resolver {
	return orderref.NewResolver(log, client, orderref.WithRecorder(m))
}

type coordinatorParams struct {
	fx.In

	Logger      *slog.Logger
	Config      config.Config
	Client      *shopapi.Client
	Tokens      *auth.Store
	Channel     *channel.Controller
	Attachments *media.Pipeline
	Orders      *orderref.Resolver
	Metrics     *metrics.Metrics
}

func provideCoordinator(p coordinatorParams) *session.Coordinator {
	deps := session.Deps{
		Conversations: conversation.NewResolver(p.Logger, p.Client),
		History:       p.Client,
		Channel:       p.Channel,
		Tokens:        p.Tokens,
		Attachments:   p.Attachments,
		Orders:        p.Orders,
	}
	if p.Config.Session.ClipboardEnabled {
		deps.Clipboard = systemClipboard{}
	}
	return session.New(p.Logger, deps,
		session.WithPageLimit(p.Config.Session.PageLimit),
		session.WithLocation(p.Config.Session.Location()),
		session.WithClipboardInterval(p.Config.Session.ClipboardInterval.Std()),
		session.WithTimelineRecorder(p.Metrics),
	)
}

// systemClipboard reads the desktop clipboard.
type systemClipboard struct{}

func (systemClipboard) ReadText() (string, error) {
	if clipboard.Unsupported {
		return "", errors.New("clipboard unsupported on this system")
	}
	return clipboard.ReadAll()
}

func startMetricsServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, flag metricsAddr, reg *prometheus.Registry) {
	addr := strings.TrimSpace(string(flag))
	if addr == "" {
		addr = strings.TrimSpace(cfg.Metrics.Addr)
	}
	if addr == "" {
		return
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	log = log.With(slog.String("component", "metrics"))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", slog.Any("error", err))
				}
			}()
			log.Info("metrics listening", slog.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

func startChat(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, coord *session.Coordinator, shutdowner fx.Shutdowner) {
	term := newTerminal(coord, os.Stdout, cfg.Auth.UserID, cfg.Session.Location())
	ctx, cancel := context.WithCancel(context.Background())
	coord.OnChange(func() { term.refresh(ctx) })

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := coord.Activate(ctx); err != nil {
					log.Error("open chat failed", slog.Any("error", err))
				}
				term.println("type /help for commands")
				term.run(ctx, os.Stdin)
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			deactivateCtx, done := context.WithTimeout(stopCtx, 5*time.Second)
			defer done()
			return coord.Deactivate(deactivateCtx)
		},
	})
}
