// Package main implements the entry point for the SocketKit service: a TCP
// socket tool server exposing connect/send/read/trigger operations over HTTP
// and, optionally, NATS request/reply.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/socketkit/config"
	gatewayhttp "github.com/c360/socketkit/gateway/http"
	gatewaynats "github.com/c360/socketkit/gateway/nats"
	"github.com/c360/socketkit/health"
	"github.com/c360/socketkit/metric"
	"github.com/c360/socketkit/natsclient"
	"github.com/c360/socketkit/pkg/retry"
	"github.com/c360/socketkit/socket"
	"github.com/c360/socketkit/tool"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "socketkit"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.NewLoader().Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	return runService(cfg, logger, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting SocketKit",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

func runService(cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Metrics and health
	metricsRegistry := metric.NewMetricsRegistry()
	coreMetrics := metricsRegistry.CoreMetrics()
	monitor := health.NewMonitor()

	socketMetrics, err := socket.NewMetrics(metricsRegistry)
	if err != nil {
		return fmt.Errorf("register socket metrics: %w", err)
	}

	// Connection engine and tool dispatch
	registry := socket.NewRegistry(socket.RegistryDeps{
		Logger:        logger,
		Metrics:       socketMetrics,
		DialTimeout:   cfg.Socket.DialTimeout,
		ReadChunkSize: cfg.Socket.ReadChunkSize,
	})
	defer registry.Close()

	dispatcher, err := tool.NewDispatcher(tool.DispatcherDeps{
		Registry: registry,
		Logger:   logger,
		Metrics:  coreMetrics,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	errs := make(chan error, 3)

	// Metrics server
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				errs <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
	}

	// HTTP gateway
	var httpGateway *gatewayhttp.Gateway
	if cfg.HTTP.Enabled {
		httpGateway, err = gatewayhttp.NewGateway(gatewayhttp.GatewayDeps{
			Address:    cfg.HTTP.Address,
			Dispatcher: dispatcher,
			Registry:   registry,
			Health:     monitor,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("create http gateway: %w", err)
		}
		go func() {
			if err := httpGateway.Start(); err != nil {
				errs <- fmt.Errorf("http gateway: %w", err)
			}
		}()
	}

	// Optional NATS gateway
	var natsClient *natsclient.Client
	var natsGateway *gatewaynats.Gateway
	if cfg.NATS.Enabled {
		natsClient, natsGateway, err = startNATSGateway(signalCtx, cfg, dispatcher, monitor, logger)
		if err != nil {
			return err
		}
		defer func() { _ = natsClient.Close() }()
		defer func() { _ = natsGateway.Stop() }()
	}

	coreMetrics.ServiceUp.Set(1)
	defer coreMetrics.ServiceUp.Set(0)
	monitor.UpdateHealthy("registry", "connection engine ready")

	healthDone := make(chan struct{})
	go watchHealth(signalCtx, healthDone, monitor, registry, natsClient)

	slog.Info("SocketKit started",
		"http", cfg.HTTP.Enabled, "nats", cfg.NATS.Enabled, "metrics", cfg.Metrics.Enabled)

	select {
	case err := <-errs:
		signalCancel()
		<-healthDone
		return err
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}
	<-healthDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if httpGateway != nil {
		if err := httpGateway.Stop(shutdownCtx); err != nil {
			slog.Warn("HTTP gateway shutdown error", "error", err)
		}
	}

	slog.Info("SocketKit shutdown complete")
	return nil
}

// startNATSGateway connects the NATS client and subscribes the tool gateway.
func startNATSGateway(
	ctx context.Context,
	cfg *config.Config,
	dispatcher *tool.Dispatcher,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*natsclient.Client, *gatewaynats.Gateway, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithDisconnectCallback(func(err error) {
			monitor.UpdateUnhealthy("nats", fmt.Sprintf("disconnected: %v", err))
		}),
		natsclient.WithReconnectCallback(func() {
			monitor.UpdateHealthy("nats", "reconnected")
		}),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := retry.Do(connectCtx, retry.Quick(), func() error {
		return client.Connect(connectCtx)
	}); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	gateway, err := gatewaynats.NewGateway(gatewaynats.GatewayDeps{
		Client:        client,
		Dispatcher:    dispatcher,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		QueueGroup:    cfg.NATS.QueueGroup,
		Logger:        logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create NATS gateway: %w", err)
	}

	if err := gateway.Start(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("start NATS gateway: %w", err)
	}

	monitor.UpdateHealthy("nats", "connected")
	return client, gateway, nil
}

// watchHealth refreshes component health until the context ends.
func watchHealth(
	ctx context.Context,
	done chan<- struct{},
	monitor *health.Monitor,
	registry *socket.Registry,
	natsClient *natsclient.Client,
) {
	defer close(done)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.UpdateHealthy("registry",
				fmt.Sprintf("%d connections", registry.Count()))
			if natsClient != nil {
				if natsClient.IsHealthy() {
					monitor.UpdateHealthy("nats", "connected")
				} else {
					monitor.UpdateUnhealthy("nats",
						fmt.Sprintf("status %s", natsClient.Status()))
				}
			}
		}
	}
}
