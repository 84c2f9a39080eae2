package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bonosa/MarsLife/internal/config"
	"github.com/bonosa/MarsLife/internal/httpapi"
	"github.com/bonosa/MarsLife/internal/i18n"
	"github.com/bonosa/MarsLife/internal/imagegen"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/logger"
	"github.com/bonosa/MarsLife/internal/notify"
	"github.com/bonosa/MarsLife/internal/payment"
	"github.com/bonosa/MarsLife/internal/realtime"
	"github.com/bonosa/MarsLife/internal/weather"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd(version string, buildTime string) *cobra.Command {
	return &cobra.Command{
		Use:          "start <config.toml>",
		Short:        "marslife start",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], version, buildTime)
		},
	}
}

// loadConfig reads and validates configFile, logging problems with a
// bootstrap logger since the configured one does not exist yet.
func loadConfig(configFile string) (*config.Config, error) {
	tempLogger, _ := zap.NewProduction()
	defer tempLogger.Sync()

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		tempLogger.Error("Config file does not exist", zap.String("path", configFile))
		return nil, fmt.Errorf("config file %s does not exist", configFile)
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		tempLogger.Error("Failed to load config", zap.Error(err))
		return nil, err
	}
	if verbose {
		cfg.LogConfig.Level = "debug"
	}
	if err := config.ValidateConfig(cfg); err != nil {
		tempLogger.Error("Config validation failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

func run(configFile string, version string, buildTime string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	log, err := logger.InitLogger(cfg.LogConfig.Level, cfg.LogConfig.Format, cfg.LogConfig.File)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	defer log.Sync()
	log.Info("Starting MarsLife", zap.String("version", version), zap.String("buildTime", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	i18nManager, err := i18n.NewManager(cfg.DefaultLanguage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize i18n manager: %w", err)
	}

	store, err := openStore(ctx, cfg.Ledger, log)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()
	ledgerSvc := ledger.NewService(store, cfg.Ledger.GenerationCost, log)

	generator, err := imagegen.New(cfg.ImageGen, nil, log)
	if err != nil {
		return fmt.Errorf("failed to initialize image generator: %w", err)
	}
	generator = imagegen.WithTimeout(generator, cfg.ImageGen.Timeout.Duration)

	notifier, err := notify.New(cfg.Telegram, i18nManager, cfg.DefaultLanguage, log)
	if err != nil {
		log.Warn("Telegram notifier disabled", zap.Error(err))
		notifier = notify.Nop{}
	}

	bridge := payment.NewBridge(payment.NewStripe(cfg.Stripe.SecretKey, nil), ledgerSvc, notifier, cfg.Stripe.Currency, log)
	weatherClient := weather.NewClient(cfg.Weather.URL, cfg.Weather.APIKey, cfg.Weather.Timeout.Duration, nil, log)

	rt := realtime.NewHandler(realtime.Deps{
		Ledger:    ledgerSvc,
		Generator: generator,
		Payments:  bridge,
		Weather:   weatherClient,
		I18n:      i18nManager,
		Logger:    log,
	})
	wsServer := realtime.NewServer(rt, cfg.DefaultLanguage, nil, log)
	router := httpapi.NewRouter(httpapi.NewHandler(ledgerSvc, bridge, log), wsServer, cfg.StaticDir, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.ListenAddr), zap.String("static_dir", cfg.StaticDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}
	wsServer.Close()
	log.Info("MarsLife stopped")
	return nil
}
