package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/logger"
	"github.com/proctoraegis/examclient/internal/mockexam"
	"github.com/proctoraegis/examclient/internal/validator"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Msg("Starting mock exam service")

	validator.Setup()

	server, err := mockexam.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed mock state")
	}

	log.Info().
		Str("exam_id", server.ExamID()).
		Str("username", "demo").
		Str("password", "demo123").
		Msg("Seeded demo exam")

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
