package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/node-relay-go/internal/config"
	"github.com/openclaw/node-relay-go/internal/handler"
	"github.com/openclaw/node-relay-go/internal/jobs"
	"github.com/openclaw/node-relay-go/internal/metrics"
	"github.com/openclaw/node-relay-go/internal/middleware"
	"github.com/openclaw/node-relay-go/internal/pairing"
	"github.com/openclaw/node-relay-go/internal/redis"
	"github.com/openclaw/node-relay-go/internal/relay"
	"github.com/openclaw/node-relay-go/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	var limiter pairing.Limiter
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		limiter = pairing.NewRedisLimiter(redisClient.Client, cfg.PairRateLimitPerMin, config.PairRateLimitWindow)
		log.Info().Msg("redis connected, shared redemption rate limit")
	} else {
		limiter = pairing.NewMemoryLimiter(cfg.PairRateLimitPerMin, config.PairRateLimitWindow)
		log.Info().Msg("per-process redemption rate limit")
	}

	authority := pairing.NewAuthority(limiter, cfg.PairingCodeTTL(), cfg.SessionTTL())
	registry := relay.NewRegistry()
	mux := relay.NewMux(registry, cfg.RequestTimeout(), cfg.MaxPendingPerNode)
	gateway := ws.NewGateway(authority, registry, mux, cfg.MaxFrameBytes, cfg.MaxBodyBytes)
	pairHandler := handler.NewPairHandler(authority)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", handler.HealthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.APIRequestTimeout))
		r.Use(middleware.BodyLimit(config.APIMaxBodyBytes))
		r.Mount("/", pairHandler.Routes())
	})

	// Long-lived connections; no request timeout here.
	r.Get("/ws/node", gateway.NodeHandler)
	r.Get("/ws/client", gateway.ClientHandler)

	cleanupJob := jobs.NewCleanupJob(authority, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting relay")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down relay")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	registry.CloseAll()

	log.Info().Msg("relay stopped")
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
