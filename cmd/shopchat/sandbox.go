package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/memohai/shopchat/internal/config"
	"github.com/memohai/shopchat/internal/handlers"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/media/providers/localfs"
	"github.com/memohai/shopchat/internal/metrics"
	"github.com/memohai/shopchat/internal/sandbox"
	"github.com/memohai/shopchat/internal/server"
)

// demoCustomerID owns the seeded orders when auth.user_id is unset.
const demoCustomerID = "demo"

func newSandboxCommand(source func() configSource) *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox",
		Short: "Run the in-memory shop backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runApp(source(),
				fx.Provide(
					provideBackend,
					provideHub,
					provideMediaStore,
					provideSandboxServer,
				),
				fx.Invoke(seedOrders, startServer),
			)
		},
	}
}

func provideBackend(log *slog.Logger, cfg config.Config) *sandbox.Backend {
	return sandbox.New(log, sandbox.WithShopUserID(cfg.Sandbox.ShopUserID))
}

func provideHub(log *slog.Logger) *sandbox.Hub {
	return sandbox.NewHub(log)
}

func provideMediaStore(log *slog.Logger, cfg config.Config) (*media.Store, error) {
	provider, err := localfs.New(cfg.Sandbox.MediaDir, "")
	if err != nil {
		return nil, fmt.Errorf("init media storage: %w", err)
	}
	return media.NewStore(log, provider), nil
}

type sandboxServerParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Backend  *sandbox.Backend
	Hub      *sandbox.Hub
	Media    *media.Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

func provideSandboxServer(p sandboxServerParams) (*server.Server, error) {
	secret := strings.TrimSpace(p.Config.Auth.JWTSecret)
	if secret == "" {
		return nil, errors.New("auth.jwt_secret is required to run the sandbox")
	}
	registrars := handlers.NewSandboxHandlers(p.Logger, handlers.SandboxDeps{
		Backend:   p.Backend,
		Hub:       p.Hub,
		Media:     p.Media,
		JWTSecret: secret,
		TokenTTL:  p.Config.Sandbox.TokenTTL.Std(),
		MaxBytes:  p.Config.Media.MaxBytes,
		PublicURL: p.Config.Sandbox.PublicURL,
	})
	return server.NewServer(p.Logger, server.Options{
		Addr:      p.Config.Sandbox.Addr,
		JWTSecret: secret,
		Metrics:   p.Metrics,
		Gatherer:  p.Registry,
	}, registrars...), nil
}

// seedOrders installs a few orders so order references resolve out of the box.
func seedOrders(log *slog.Logger, cfg config.Config, backend *sandbox.Backend) {
	owner := strings.TrimSpace(cfg.Auth.UserID)
	if owner == "" {
		owner = demoCustomerID
	}
	orders := []sandbox.Order{
		{ID: "DH001", OwnerID: owner, SKU: "AO-THUN-TRANG-M", TotalPrice: decimal.RequireFromString("259000"), ReceiverFullname: "Nguyễn Văn A"},
		{ID: "DH002", OwnerID: owner, SKU: "GIAY-CHAY-42", TotalPrice: decimal.RequireFromString("1450000"), ReceiverFullname: "Nguyễn Văn A"},
		{ID: "DH003", OwnerID: owner, SKU: "BALO-DEN-20L", TotalPrice: decimal.RequireFromString("489000.50"), ReceiverFullname: "Trần Thị B"},
	}
	for _, o := range orders {
		backend.PutOrder(o)
	}
	log.Info("seeded sandbox orders", slog.String("owner", owner), slog.Int("count", len(orders)))
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("sandbox server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return srv.Shutdown(stopCtx)
		},
	})
}
