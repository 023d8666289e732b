package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/andrewanujbusiness/messenger/internal/api"
	"github.com/andrewanujbusiness/messenger/internal/api/middleware"
	"github.com/andrewanujbusiness/messenger/internal/auth"
	"github.com/andrewanujbusiness/messenger/internal/chat"
	"github.com/andrewanujbusiness/messenger/internal/config"
	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/realtime"
	"github.com/andrewanujbusiness/messenger/internal/store"
	"github.com/andrewanujbusiness/messenger/internal/tone"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis store (rate limiting, and the redis backend)
	var redisStore *store.RedisStore
	if cfg.Store.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.Store.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		redisStore.WithLogger(logger)
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	dataStore, err := openStore(ctx, cfg, redisStore, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("store initialization failed")
	}
	defer dataStore.Close()

	if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("using the default JWT secret; set JWT_SECRET outside development")
	}
	signer, err := crypto.NewTokenSigner(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("token signer")
	}
	authenticator := auth.NewAuthenticator(dataStore, signer)

	// Tone adjustment falls back to the original text when no key is set
	var completer tone.Completer
	if cfg.Tone.APIKey != "" {
		completer, err = tone.NewOpenAICompleter(tone.OpenAIOptions{
			APIKey:      cfg.Tone.APIKey,
			BaseURL:     cfg.Tone.BaseURL,
			Model:       cfg.Tone.Model,
			MaxTokens:   cfg.Tone.MaxTokens,
			Temperature: cfg.Tone.Temperature,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("tone client")
		}
		logger.Info().Str("model", cfg.Tone.Model).Msg("tone adjustment enabled")
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; messages are delivered without tone adjustment")
	}
	toneService := tone.NewService(completer, cfg.Tone.Timeout, logger)

	chatService := chat.NewService(dataStore, toneService, chat.Options{
		MaxMessageSize: int(cfg.Chat.MaxMessageSize),
		AutoReplyMin:   cfg.Chat.AutoReplyMin,
		AutoReplyMax:   cfg.Chat.AutoReplyMax,
	}, logger)

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	wsServer := realtime.NewServer(hub, chatService, authenticator, realtime.Options{
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		PingInterval:   cfg.Chat.PingInterval,
		ReadTimeout:    cfg.Chat.ReadTimeout,
		WriteTimeout:   cfg.Chat.WriteTimeout,
		AutoReply:      cfg.Chat.AutoReply,
		SendRate:       rate.Limit(cfg.Chat.SendRate),
		SendBurst:      cfg.Chat.SendBurst,
	}, logger)

	// Create router
	router := api.NewRouter(logger, api.Deps{
		Store:    dataStore,
		Redis:    redisStore,
		Auth:     authenticator,
		Chat:     chatService,
		Hub:      hub,
		Realtime: wsServer,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // covers a slow tone rewrite on POST /messages
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("backend", cfg.Store.Backend).
			Msg("starting messenger server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()

	logger.Info().Msg("server stopped")
}

// openStore builds the configured backend.
func openStore(ctx context.Context, cfg *config.Config, redisStore *store.RedisStore, logger zerolog.Logger) (store.DataStore, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.Store.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Seed(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg, nil

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		s, err := store.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Store.SQLitePath).Msg("opened SQLite database")
		return s, nil

	case config.BackendRedis:
		// Shares the connection opened for rate limiting. Close is deferred there.
		return nopCloser{redisStore}, nil

	default:
		logger.Info().Msg("using in-memory store with demo conversations")
		return store.NewDemoMemoryStore(), nil
	}
}

// nopCloser keeps the shared Redis connection open until main closes it.
type nopCloser struct {
	*store.RedisStore
}

func (nopCloser) Close() {}
