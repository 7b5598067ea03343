package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydronet-io/hydrogate/internal/logger"
	"github.com/hydronet-io/hydrogate/pkg/api"
	"github.com/hydronet-io/hydrogate/pkg/bus"
	"github.com/hydronet-io/hydrogate/pkg/config"
	"github.com/hydronet-io/hydrogate/pkg/gateway"
	"github.com/hydronet-io/hydrogate/pkg/imagestore"
	"github.com/hydronet-io/hydrogate/pkg/link"
	"github.com/hydronet-io/hydrogate/pkg/metrics"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the hydrogate server",
	Long: `Start the hydrogate server with the specified configuration.

The server runs in the foreground; use a process supervisor such as
systemd for background operation.

Examples:
  # Start with default config location
  hydrogate start

  # Start with custom config file
  hydrogate start --config /etc/hydrogate/config.yaml

  # Start with environment variable overrides
  HYDROGATE_LOGGING_LEVEL=DEBUG hydrogate start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("Hydrogate - SL651 telemetry gateway")
	logger.Info("configuration loaded",
		"source", configSource(GetConfigFile()),
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format)

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = st.Close() }()
	logger.Info("store initialized", "type", cfg.Database.Type)

	eventBus := bus.New()
	gw := gateway.New(gateway.Config{
		CenterCode:     cfg.Gateway.CenterCode,
		Workers:        cfg.Gateway.Workers,
		MaxBufferSize:  cfg.Gateway.MaxBufferSize,
		SessionTimeout: cfg.Gateway.SessionTimeout,
		MaxSessions:    cfg.Gateway.MaxSessions,
		Link: link.Config{
			ReconnectBase:    cfg.Gateway.ReconnectBaseDelay,
			ReconnectCeiling: cfg.Gateway.ReconnectMaxDelay,
			ReconnectJitter:  cfg.Gateway.ReconnectJitter,
			DialTimeout:      cfg.Gateway.DialTimeout,
			WriteTimeout:     cfg.Gateway.WriteTimeout,
		},
	}, st, eventBus)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metrics.MustRegister(metrics.NewGatewayCollector(gw))
		logger.Info("metrics enabled")
	} else {
		logger.Info("metrics collection disabled")
	}

	if cfg.ImageStore.Enabled {
		archive, err := imagestore.NewFromConfig(ctx, imagestore.Config{
			Bucket:         cfg.ImageStore.Bucket,
			Region:         cfg.ImageStore.Region,
			Endpoint:       cfg.ImageStore.Endpoint,
			AccessKey:      cfg.ImageStore.AccessKey,
			SecretKey:      cfg.ImageStore.SecretKey,
			ForcePathStyle: cfg.ImageStore.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize image archive: %w", err)
		}
		gw.SetArchiver(archive)
		logger.Info("image archive enabled", logger.KeyBucket, cfg.ImageStore.Bucket)
	}

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	defer gw.Stop()

	apiServer := api.NewServer(api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}, api.NewHandlers(st, gateway.NewService(st, eventBus), gw))

	apiDone := make(chan error, 1)
	go func() {
		apiDone <- apiServer.Start(ctx)
	}()

	// Live re-tuning: only the log level is applied without a restart,
	// everything else needs a new process.
	if GetConfigFile() != "" || config.DefaultConfigExists() {
		watcher, err := config.Watch(configSource(GetConfigFile()), func(next *config.Config) {
			logger.SetLevel(next.Logging.Level)
			logger.Info("log level applied from config file", "log_level", next.Logging.Level)
		})
		if err != nil {
			logger.Warn("config watch unavailable", logger.KeyError, err.Error())
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		select {
		case err := <-apiDone:
			if err != nil {
				logger.Error("API server shutdown error", logger.KeyError, err.Error())
				return err
			}
		case <-time.After(cfg.ShutdownTimeout):
			logger.Warn("shutdown timeout exceeded, exiting")
		}
		logger.Info("server stopped gracefully")

	case err := <-apiDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("API server error", logger.KeyError, err.Error())
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}

// configSource returns the effective configuration file path.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return config.GetDefaultConfigPath()
}
