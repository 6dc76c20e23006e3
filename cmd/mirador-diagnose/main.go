package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-diagnose/internal/api"
	"github.com/miradorstack/mirador-diagnose/internal/config"
	"github.com/miradorstack/mirador-diagnose/internal/metrics"
	"github.com/miradorstack/mirador-diagnose/internal/services"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %q: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting mirador-diagnose",
		zap.String("grpc_address", cfg.Server.Address),
		zap.String("http_address", cfg.Server.HTTPAddress),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, closeStore, err := services.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build incident service", zap.Error(err))
	}
	defer closeStore()

	server, err := api.NewServer(cfg.Server, api.NewGRPCHandler(service, logger), logger)
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}
	var httpServer *api.HTTPServer
	if cfg.Server.HTTPAddress != "" {
		httpServer = api.NewHTTPServer(cfg.Server.HTTPAddress, api.NewRouter(service, logger))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("address", server.Address()))
		if err := server.Start(); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	if httpServer != nil {
		g.Go(func() error {
			logger.Info("http server listening", zap.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.Start(); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
		defer cancel()
		server.Shutdown(shutdownCtx)
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", zap.Error(err))
	}
	logger.Info("mirador-diagnose stopped", zap.Duration("p95_investigation", service.LatencyP95()))
}
