package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	appskit "github.com/AndurilCode/mcp-apps-kit-sub001"
	"github.com/AndurilCode/mcp-apps-kit-sub001/adapter"
	"github.com/AndurilCode/mcp-apps-kit-sub001/auth"
	"github.com/AndurilCode/mcp-apps-kit-sub001/config"
	"github.com/AndurilCode/mcp-apps-kit-sub001/otelobs"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugins/audit"
	"github.com/AndurilCode/mcp-apps-kit-sub001/schedule"
	"github.com/AndurilCode/mcp-apps-kit-sub001/server"
	"github.com/AndurilCode/mcp-apps-kit-sub001/tool"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool server",
		RunE:  runServe,
	}

	cmd.Flags().String("config", "", "Path to appskit.yaml")
	cmd.Flags().String("transport", "", "Host transport: stdio | http (overrides config)")
	cmd.Flags().String("host", "", "HTTP listen host (overrides config)")
	cmd.Flags().IntP("port", "p", 0, "HTTP listen port (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	app, cleanup, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(app)
	if err != nil {
		return exitError(exitRuntime, "building server: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting application: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
	}()

	scheduler, err := startScheduler(app, cfg)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = scheduler.Stop(stopCtx)
		}()
	}

	switch cfg.Server.Transport {
	case "http":
		addr := cfg.Server.Addr()
		fmt.Fprintf(cmd.OutOrStdout(), "%s listening on %s\n", app.Name(), addr)
		if err := srv.Serve(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	default:
		if err := srv.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// resolveConfig loads configuration and applies flag overrides.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	explicitPath, _ := cmd.Flags().GetString("config")

	path, found, err := config.Discover(explicitPath)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "%s", err)
	}

	cfg := config.Default()
	if found {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, exitError(exitConfig, "%s", err)
		}
	}

	if transport, _ := cmd.Flags().GetString("transport"); transport != "" {
		cfg.Server.Transport = transport
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, exitError(exitConfig, "%s", err)
	}
	return cfg, nil
}

// buildApp assembles the application from configuration: built-in tools, the
// audit trail, telemetry, and token verification. The returned cleanup must
// run after shutdown.
func buildApp(ctx context.Context, cfg config.Config) (*appskit.App, func(), error) {
	logger := slog.Default()
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var plugins []plugin.Plugin

	if cfg.Audit != nil {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			cleanup()
			return nil, nil, exitError(exitRuntime, "opening audit store: %v", err)
		}
		plugins = append(plugins, store.Plugin())
	}

	if cfg.Telemetry.Enabled {
		tracer := otelapi.GetTracerProvider().Tracer("appskit/tool")
		if cfg.Telemetry.OTLPEndpoint != "" {
			otlpTracer, shutdown, err := otelobs.SetupTracing(ctx, cfg.Name, cfg.Telemetry.OTLPEndpoint)
			if err != nil {
				cleanup()
				return nil, nil, exitError(exitRuntime, "initializing tracing: %v", err)
			}
			tracer = otlpTracer
			cleanups = append(cleanups, func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			})
		}

		observer, err := otelobs.New(otelapi.GetMeterProvider().Meter("appskit/tool"), tracer)
		if err != nil {
			cleanup()
			return nil, nil, exitError(exitRuntime, "initializing observability: %v", err)
		}
		plugins = append(plugins, observer.Plugin())
	}

	var verifier auth.Verifier
	if cfg.Auth != nil {
		keys := make(map[string]any, len(cfg.Auth.Keys))
		for kid, secret := range cfg.Auth.Keys {
			keys[kid] = []byte(secret)
		}
		verifier = auth.NewJWTVerifier(auth.JWTConfig{
			Issuer:             cfg.Auth.Issuer,
			Audience:           cfg.Auth.Audience,
			Keys:               keys,
			JWKSURL:            cfg.Auth.JWKSURL,
			RefreshMinInterval: cfg.Auth.RefreshMinInterval,
		})
	}

	app, err := appskit.New(appskit.Options{
		Name:                cfg.Name,
		Version:             cfg.Version,
		Adapter:             adapter.Kind(cfg.Adapter),
		Plugins:             plugins,
		Tools:               tool.Builtins(),
		Verifier:            verifier,
		Logger:              logger,
		MaxEventSubscribers: cfg.MaxEventSubscribers,
	})
	if err != nil {
		cleanup()
		return nil, nil, exitError(exitRuntime, "building application: %v", err)
	}
	return app, cleanup, nil
}

func startScheduler(app *appskit.App, cfg config.Config) (*schedule.Scheduler, error) {
	if len(cfg.Schedules) == 0 {
		return nil, nil
	}

	scheduler, err := schedule.New(app, app.Logger())
	if err != nil {
		return nil, exitError(exitRuntime, "creating scheduler: %v", err)
	}
	for _, s := range cfg.Schedules {
		err := scheduler.Add(schedule.Entry{
			Cron:  s.Cron,
			Tool:  s.Tool,
			Input: s.Input,
		})
		if err != nil {
			return nil, exitError(exitConfig, "%s", err)
		}
	}
	scheduler.Start()
	return scheduler, nil
}
