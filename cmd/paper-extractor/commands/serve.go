package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-extractor/internal/api"
	"github.com/spherical/paper-extractor/internal/config"
	"github.com/spherical/paper-extractor/internal/events"
	"github.com/spherical/paper-extractor/internal/llm"
	"github.com/spherical/paper-extractor/internal/observability"
	"github.com/spherical/paper-extractor/internal/pdf"
	"github.com/spherical/paper-extractor/internal/pipeline"
	"github.com/spherical/paper-extractor/internal/raster"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	logger := newLogger(cfg)

	apiKey, err := cfg.RequireAPIKey()
	if err != nil {
		return err
	}

	ctx := context.Background()

	bus, err := newBus(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	defer bus.Close()

	extractor, err := llm.NewClient(ctx, apiKey, llm.Options{
		PageModel:      cfg.Extraction.PageModel,
		ChemistryModel: cfg.Extraction.ChemistryModel,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create extraction client: %w", err)
	}

	session, err := pipeline.NewSession(pipeline.Options{
		Rasterizer:       pdf.NewConverter(),
		Extractor:        extractor,
		Cropper:          raster.NewCropper(),
		Publisher:        bus,
		Logger:           logger,
		PageTimeout:      cfg.Extraction.PageTimeout,
		ChemistryTimeout: cfg.Extraction.ChemistryTimeout,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	router := api.NewRouter(logger, session, bus, api.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        Version,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("page_model", cfg.Extraction.PageModel).
			Str("chemistry_model", cfg.Extraction.ChemistryModel).
			Str("events", cfg.Events.Driver).
			Msg("Starting paper extractor API")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// newBus picks the event fan-out driver from config.
func newBus(ctx context.Context, cfg *config.Config, logger *observability.Logger) (events.Bus, error) {
	switch cfg.Events.Driver {
	case "redis":
		broker, err := events.NewRedisBroker(ctx, events.RedisConfig{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			Channel:  cfg.Events.Redis.Channel,
			Buffer:   cfg.Events.Buffer,
		}, logger)
		if err != nil {
			return nil, err
		}
		return broker, nil
	default:
		return events.NewBroker(cfg.Events.Buffer, logger), nil
	}
}
