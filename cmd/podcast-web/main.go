package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"podcast-web/internal/assets"
	"podcast-web/internal/client"
	"podcast-web/internal/config"
	"podcast-web/internal/handler"
	"podcast-web/internal/metrics"
	"podcast-web/internal/server"
	"podcast-web/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("podcast-web"),
		kong.Description("Serves the podcast web app, its API and the /proxy/ CORS relay."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(newFxLogger),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newMetrics,
			server.New,
			client.NewUpstreamClient,
			service.NewProxyService,
			assets.NewEntryDocument,
			handler.NewProxyHandler,
			handler.NewAPIHandler,
			handler.NewSPAHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, watchEntryDocument, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h).With("env", string(cfg.Env))
}

// newFxLogger routes fx lifecycle events through slog at debug level, and
// drops them entirely in test mode.
func newFxLogger(cfg *config.Config, logger *slog.Logger) fxevent.Logger {
	if !cfg.Env.Logging() {
		return fxevent.NopLogger
	}
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

// newMetrics returns nil when metrics are disabled; every consumer treats
// a nil *metrics.Metrics as "don't record".
func newMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func watchEntryDocument(lc fx.Lifecycle, cfg *config.Config, entry *assets.EntryDocument) {
	if !cfg.Assets.WatchEnabled() {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return entry.Watch() },
		OnStop:  entry.Close,
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			if cfg.Env.Logging() {
				logger.Info("starting server", "addr", addr, "assets", cfg.Assets.Root)
			}
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cfg.Env.Logging() {
				logger.Info("shutting down server")
			}
			return e.Shutdown(ctx)
		},
	})
}
