package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/shopchat/internal/config"
	"github.com/memohai/shopchat/internal/logger"
	"github.com/memohai/shopchat/internal/metrics"
)

// configSource is the --config flag value; empty falls back to CONFIG_PATH.
type configSource string

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "shopchat",
		Short:         "Customer to shop chat client and local sandbox backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (TOML or YAML); defaults to $CONFIG_PATH or config.toml")

	source := func() configSource { return configSource(configPath) }
	cmd.AddCommand(
		newChatCommand(source),
		newSandboxCommand(source),
		newTokenCommand(source),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func provideConfig(src configSource) (config.Config, error) {
	path := strings.TrimSpace(string(src))
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func fxLogger(log *slog.Logger) fxevent.Logger {
	return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
}

// runApp runs an fx application until a signal or a shutdown request.
func runApp(src configSource, opts ...fx.Option) error {
	opts = append([]fx.Option{
		fx.Supply(src),
		fx.Provide(provideConfig, provideLogger, provideRegistry, provideMetrics),
		fx.WithLogger(fxLogger),
	}, opts...)
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
