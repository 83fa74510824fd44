package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/presence-keeper-go/internal/config"
	"github.com/openclaw/presence-keeper-go/internal/database"
	"github.com/openclaw/presence-keeper-go/internal/handler"
	"github.com/openclaw/presence-keeper-go/internal/poller"
	"github.com/openclaw/presence-keeper-go/internal/redis"
	"github.com/openclaw/presence-keeper-go/internal/repository"
	"github.com/openclaw/presence-keeper-go/internal/supervisor"
	"github.com/openclaw/presence-keeper-go/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to account store")
		os.Exit(config.ExitStoreUnavailable)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		cancel()
		log.Error().Err(err).Msg("failed to ping account store")
		os.Exit(config.ExitStoreUnavailable)
	}
	cancel()
	log.Info().Msg("account store connected")

	accountRepo := repository.NewAccountRepository(db.DB)

	var notifier supervisor.Notifier
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		notifier = redis.NewStatusPublisher(redisClient)
		log.Info().Msg("redis connected, status fan-out enabled")
	}

	sup := supervisor.New(supervisor.Options{
		Dial:     transport.NewDialer(cfg.RemoteAddr),
		Tokens:   accountRepo,
		Notifier: notifier,
	})
	sup.Start()

	accountPoller := poller.New(accountRepo, sup, cfg.PollInterval())

	startupCtx, startupCancel := context.WithTimeout(context.Background(), config.PollTimeout)
	if err := accountPoller.RunOnce(startupCtx); err != nil {
		startupCancel()
		log.Error().Err(err).Msg("failed to read accounts at startup")
		os.Exit(config.ExitStoreUnavailable)
	}
	startupCancel()

	accountPoller.Start()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	sessionsHandler := handler.NewSessionsHandler(sup)
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Mount("/", sessionsHandler.Routes())
	})

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	accountPoller.Stop()
	sup.Shutdown(config.ShutdownGrace)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerStopTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	log.Info().Msg("stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
