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

	"github.com/dgallion1/inkport/internal/api"
	"github.com/dgallion1/inkport/internal/classify"
	"github.com/dgallion1/inkport/internal/config"
	"github.com/dgallion1/inkport/internal/pipeline"
	"github.com/dgallion1/inkport/internal/session"
)

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !cfg.LogColor, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func main() {
	cfg, err := config.Load()
	log := newLogger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier := classify.NewClient(classify.Options{
		BaseURL:    cfg.ClassifyURL,
		APIKey:     cfg.ClassifyAPIKey,
		Timeout:    cfg.ClassifyTimeout,
		MaxRetries: cfg.ClassifyMaxRetries,
	}, log)
	if !classifier.Configured() {
		log.Warn().Msg("CLASSIFY_URL not set, analysis disabled")
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, log)
	orch.Start(ctx)

	sessions := session.NewRegistry(cfg.SessionTTL)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.Cleanup(); n > 0 {
					log.Info().Int("removed", n).Msg("expired sessions removed")
				}
			}
		}
	}()

	srv := api.NewServer(orch, sessions, classifier, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.ImportTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}

		orch.Stop()
		cancel()
		classifier.Close()
	}()

	log.Info().Str("port", cfg.Port).Int("workers", cfg.WorkerCount).Msg("starting inkport")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	<-stopped
	log.Info().Msg("stopped")
}
