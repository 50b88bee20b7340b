package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"perp-gateway/internal/api"
	"perp-gateway/internal/monitor"
	"perp-gateway/pkg/config"
	"perp-gateway/pkg/logger"
)

const version = "0.3.0"

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "perp-gateway",
		Short:        "Multi-wallet derivatives trading gateway",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gateway.yaml)")

	rootCmd.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the HTTP gateway", RunE: runServe},
		newTokenCmd(),
		newKeygenCmd(),
		newWalletCmd(),
		newHealthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration, then initialises logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := buildGateway(cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	mon := &monitor.Monitor{
		Bus:  gw.Bus,
		Sink: monitor.LogSink{Log: logger.WithComponent("alerts")},
		Rule: monitor.NewRejectionRule(5, time.Minute),
		Log:  logger.WithComponent("monitor"),
	}
	mon.Start(ctx)
	startPaperMarkFeed(ctx, cfg, gw.Info)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(api.Deps{
		Engine:   gw.Engine,
		Sessions: gw.Resolver,
		Info:     gw.Info,
		Auth:     gw.Auth,
		Bus:      gw.Bus,
		Metrics:  gw.Metrics,
		Log:      logger.WithComponent("api"),
	}, api.SystemMeta{
		Venue:   cfg.Venue.Name,
		DryRun:  cfg.DryRun(),
		Version: version,
	}, api.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		TokenTTL:       cfg.Auth.TokenTTL,
	})

	httpServer := server.HTTPServer(":" + cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).WithField("venue", cfg.Venue.Name).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("gateway stopped")
	return nil
}
