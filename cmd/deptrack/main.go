// Package main is the entry point for the deptrack agent binary.
//
// The agent wires the correlation core to an instrumented HTTP client,
// exports dependency records as OTLP spans and metrics, serves Prometheus
// metrics, and optionally drives configured synthetic probes so the
// instrumentation can be observed end to end.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/deptrack/deptrack/pkg/config"
	"github.com/deptrack/deptrack/pkg/correlation"
	"github.com/deptrack/deptrack/pkg/dispatch"
	"github.com/deptrack/deptrack/pkg/logging"
	"github.com/deptrack/deptrack/pkg/telemetry"
	"github.com/deptrack/deptrack/pkg/transport"
)

const (
	defaultConfigPath    = "deptrack.yaml"
	defaultProbeInterval = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deptrack",
		Short: "Outbound dependency telemetry agent",
		Long: `deptrack instruments outbound HTTP calls and emits one correlated
dependency record per call, annotated with trace ids, propagated baggage,
and cross-component identity.

Example:
  deptrack --config deptrack.yaml --log-level debug`,
		RunE: runAgent,
	}

	rootCmd.Flags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level override (debug, info, warn, error)")
	rootCmd.Flags().Bool("pretty", false, "Enable pretty console logging")
	return rootCmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("pretty")

	bootLogger := logging.NewLogger(logging.Config{Level: logLevel, Pretty: pretty})
	slog.SetDefault(bootLogger)

	provider, err := config.NewFileProvider(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("initialize config provider: %w", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slog.Default().Error("failed to close config provider", "error", err)
		}
	}()

	cfg := provider.Current()
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	logger := logging.NewLogger(logging.Config{Level: logLevel, Pretty: pretty || cfg.Logging.Pretty})
	slog.SetDefault(logger)

	logger.Info("starting deptrack", "config", configPath, "http_stack", cfg.HTTPStack)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry provider: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	dispatchMetrics := dispatch.NewMetrics(registry)

	bus := dispatch.NewBus(logger, dispatchMetrics)
	engine := correlation.NewEngine(correlation.Settings{
		InstrumentationKey:   cfg.InstrumentationKey,
		IngestionHost:        cfg.IngestionHost,
		InjectHeaders:        cfg.Correlation.SetCorrelationHeaders,
		ExcludedDomains:      cfg.Correlation.ExcludedDomains,
		LegacyHeadersEnabled: cfg.Correlation.LegacyHeaders,
	}, correlation.StaticResolver(cfg.AppIDs), telemetry.MultiEmitter{
		telemetry.NewSpanEmitter(nil),
		telemetry.NewMetricEmitter(),
	}, logger)
	engine.Pending().StartCleanup(ctx, time.Minute, 5*time.Minute)

	protocol := dispatch.ParseProtocol(cfg.HTTPStack)
	listener := dispatch.NewListener(bus, engine, protocol,
		dispatch.SelfTrafficFilter(cfg.IngestionHost), logger, dispatchMetrics)
	listener.Subscribe()

	client := transport.NewClient(bus, protocol, logger)
	for _, probe := range cfg.Probes {
		go runProbe(ctx, client, probe, logger)
	}

	server := startMetricsServer(cfg.MetricsListen, registry, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
	return nil
}

func startMetricsServer(addr string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return server
}

// runProbe issues periodic GET requests through the instrumented client so
// every probe produces one dependency record per tick.
func runProbe(ctx context.Context, client *http.Client, probe config.Probe, logger *slog.Logger) {
	interval := probe.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.URL, nil)
			if err != nil {
				logger.Error("building probe request failed", "url", probe.URL, "error", err)
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				logger.Debug("probe request failed", "url", probe.URL, "error", err)
				continue
			}
			_ = resp.Body.Close()
		}
	}
}
