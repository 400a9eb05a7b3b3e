package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfm-portal/testportal/internal/config"
	"github.com/sfm-portal/testportal/internal/db"
	"github.com/sfm-portal/testportal/internal/food"
	portalHttp "github.com/sfm-portal/testportal/internal/handler/http"
	"github.com/sfm-portal/testportal/internal/order"
	"github.com/sfm-portal/testportal/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("log_level", cfg.App.LogLevel).Msg("Unknown log level, keeping debug")
	} else {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()

	log.Info().Str("storage", cfg.App.Storage).Msg("Test portal starting...")

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open order storage")
	}

	menu := food.NewGenerator(food.SystemClock())
	svc := order.NewService(repo, menu)
	router := transport.NewRouter(portalHttp.NewPortalHandler(svc, menu))

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	closeRepo()

	log.Info().Msg("Test portal stopped gracefully")
}

// openRepository picks the order storage. The returned func releases it.
func openRepository(cfg *config.Config) (order.Repository, func(), error) {
	if cfg.App.Storage == config.StorageMemory {
		log.Warn().Msg("Orders are kept in memory and lost on restart")
		return order.NewMemoryRepository(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.New(connectCtx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(); err != nil {
		pg.Close()
		return nil, nil, err
	}

	reader := pg.SQLX()
	closeFn := func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close sqlx reader")
		}
		pg.Close()
	}
	return order.NewRepository(pg.Pool, reader), closeFn, nil
}
