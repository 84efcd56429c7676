package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/spacebridge/gateway/internal/adapter/inbound/http"
	"github.com/spacebridge/gateway/internal/adapter/outbound/hub"
	"github.com/spacebridge/gateway/internal/adapter/outbound/ssemcp"
	"github.com/spacebridge/gateway/internal/config"
	"github.com/spacebridge/gateway/internal/domain/registry"
	"github.com/spacebridge/gateway/internal/domain/selection"
	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/observability"
	"github.com/spacebridge/gateway/internal/service/bridge"
	"github.com/spacebridge/gateway/internal/service/cache"
	"github.com/spacebridge/gateway/internal/service/discovery"
	"github.com/spacebridge/gateway/internal/service/proxy"
)

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (verbose logging, pretty-printed otel spans on stderr)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the spacebridge aggregating proxy's HTTP transport.

Boots the two-level discovery cache, the parallel discovery pipeline, the
upstream bridge, the tool-selection strategy, and the session registry,
then serves the downstream protocol over Streamable HTTP at
/mcp, with /health and /metrics alongside it.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	} else {
		logger.Info("no config file found, using defaults and environment overrides")
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	provider, err := observability.New(ctx, "spacebridge", cfg.DevMode)
	if err != nil {
		return fmt.Errorf("failed to build observability providers: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown error", "error", err)
		}
	}()

	transport, sessions, err := wire(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to wire proxy: %w", err)
	}

	stopSweep := startIdleSweep(ctx, sessions, transport.Metrics(), logger)
	defer stopSweep()

	logger.Info("spacebridge starting",
		"addr", cfg.Server.HTTPAddr,
		"metadata_ttl", cfg.Cache.MetadataTTL,
		"schema_ttl", cfg.Cache.SchemaTTL,
		"discovery_concurrency", cfg.Discovery.Concurrency,
		"dev_mode", cfg.DevMode,
	)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("spacebridge stopped")
	return nil
}

// wire constructs the full dependency graph in dependency
// order (leaves first): cache, discovery pipeline, upstream bridge, tool
// selection strategy, session & tool registry, legacy rewriter (the
// rewriter is applied inside internal/service/proxy at ingress, not wired
// here), and finally the HTTP transport that fronts all of it.
func wire(cfg *config.Config, logger *slog.Logger) (*httptransport.HTTPTransport, *session.Manager, error) {
	// The transport is constructed first (though not started) so its
	// Prometheus metrics are available to wire into the discovery
	// pipeline, bridge, and cache as their Recorder port below.
	transport := httptransport.NewHTTPTransport(nil,
		httptransport.WithAddr(cfg.Server.HTTPAddr),
		httptransport.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httptransport.WithLogger(logger),
	)
	metrics := transport.Metrics()

	discoveryCache := cache.New(cfg.Cache.MetadataTTL, cfg.Cache.SchemaTTL, cache.WithRecorder(metrics))

	hubHTTPClient := &stdhttp.Client{}
	hubClient := hub.NewClient(hubHTTPClient)

	pipeline := discovery.New(discoveryCache, hubClient, hubClient, discovery.Config{
		Concurrency: cfg.Discovery.Concurrency,
		MetadataTO:  cfg.Discovery.MetadataTimeout,
		SchemaTO:    cfg.Discovery.SchemaTimeout,
	}, logger, discovery.WithRecorder(metrics))

	sseFactory := ssemcp.NewFactory(&stdhttp.Client{})
	bridgeOpts := []bridge.Option{bridge.WithLogger(logger), bridge.WithRecorder(metrics)}
	if cfg.Bridge.NoReplicaRewrite {
		bridgeOpts = append(bridgeOpts, bridge.WithNoReplicaRewrite())
	}
	upstreamBridge := bridge.New(sseFactory, bridgeOpts...)

	presets := make([]selection.Preset, 0, len(cfg.Selection.Bouquets))
	for _, p := range cfg.Selection.Bouquets {
		presets = append(presets, selection.Preset{Name: p.Name, ToolIDs: p.ToolIDs, When: p.When})
	}
	presetResolver, err := selection.NewPresets(presets)
	if err != nil {
		return nil, nil, fmt.Errorf("building selection presets: %w", err)
	}
	strategy := selection.New(presetResolver)

	// Built-in tool implementations (search, repo details, documentation
	// fetch) are plain HTTP clients against the service catalogue and are
	// not part of this module: no Builtin entries are wired
	// here, so KnownBuiltinIDs is empty and every session's catalogue is
	// built entirely from its resolved gradio endpoints.
	reg := registry.New(nil, pipeline, upstreamBridge, logger)

	sessions := session.NewManager(cfg.Server.SessionIdleTimeout)

	svc := proxy.New(sessions, reg, strategy, nil, proxy.Config{
		SearchEnablesFetch: cfg.Selection.SearchEnablesFetch,
		DocsSearchID:       cfg.Selection.DocsSearchID,
		DocsFetchID:        cfg.Selection.DocsFetchID,
		DefaultBearerToken: cfg.Auth.DefaultHFToken,
	}, logger)

	healthChecker := httptransport.NewHealthChecker(sessions, discoveryCache, Version)
	transport.SetHealthChecker(healthChecker)
	transport.SetDispatcher(svc)

	return transport, sessions, nil
}

// startIdleSweep periodically tears down sessions that have exceeded the
// configured idle timeout, and samples the current session count into the
// active_sessions gauge. It returns a stop function.
func startIdleSweep(ctx context.Context, sessions *session.Manager, metrics *httptransport.Metrics, logger *slog.Logger) func() {
	ticker := time.NewTicker(time.Minute)
	stopCh := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				expired := sessions.SweepIdle()
				if len(expired) > 0 {
					logger.Debug("swept idle sessions", "count", len(expired))
				}
				metrics.SetActiveSessions(float64(sessions.Count()))
			}
		}
	}()

	return func() {
		close(stopCh)
		<-done
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
