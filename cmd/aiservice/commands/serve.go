package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/notflix/aiservice/internal/config"
	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/manager"
	grpcserver "github.com/notflix/aiservice/internal/server/grpc"
	httpserver "github.com/notflix/aiservice/internal/server/http"
	"github.com/notflix/aiservice/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the HTTP gateway and, when server.grpc_addr is set, the gRPC health
service.

Examples:
  aiservice serve
  aiservice serve -c ./configs/config.yaml
  AI_SERVICE_TEST_MODE=1 MEDIA_ROOT=/tmp/media aiservice serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, found, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	if found {
		log.Info("Config loaded successfully", "config", flagConfigPath)
	} else {
		log.Warn("Config file not found, using defaults", "config", flagConfigPath)
	}
	if cfg.Media.Root == "" {
		return errors.New("media root is not set (media.root or MEDIA_ROOT)")
	}
	if cfg.TestMode {
		log.Warn("Test mode: every model family uses the stub runtime")
	}

	placement, err := device.Resolve(cfg.Device, device.DefaultProbe, log)
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup("aiservice", cfg.Telemetry.Enabled, log)
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()
	metrics, err := telemetry.NewMetrics(tel.MeterProvider)
	if err != nil {
		return err
	}

	mgr, err := manager.New(cfg, placement, manager.WithMetrics(metrics), manager.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Error("Failed to stop models", "error", err)
		}
	}()

	services, err := newServices(cfg, mgr, metrics, log)
	if err != nil {
		return err
	}

	var apiKey atomic.Value
	apiKey.Store(cfg.Server.APIKey)
	if cfg.Server.APIKey == "" {
		log.Warn("API key not set, requests are not authenticated")
	}

	if found {
		watcher, err := config.NewWatcher(flagConfigPath, flagSchemaPath, func(next *config.Config, err error) {
			if err != nil {
				log.Error("Failed to reload config", "error", err)
				return
			}
			apiKey.Store(next.Server.APIKey)
			log.Info("Config reloaded, API key updated; other changes apply on restart")
		})
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	preload(ctx, cfg, services, log)

	httpSrv := httpserver.NewServer(cfg.Server.HTTPAddr, services, httpserver.Options{
		MediaRoot: cfg.Media.Root,
		APIKey:    func() string { return apiKey.Load().(string) },
		GPU:       placement.Accelerated,
		Models:    mgr,
		Metrics:   tel.Handler,
		Logger:    log,
		Version:   Version,
	})

	errs := make(chan error, 2)
	go func() { errs <- httpSrv.ListenAndServe() }()

	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPCAddr != "" {
		grpcSrv = grpcserver.NewServer(log)
		go func() { errs <- grpcSrv.ListenAndServe(cfg.Server.GRPCAddr) }()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	}

	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
