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

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/api"
	"github.com/Vasu1712/chatwise-backend/internal/auth"
	"github.com/Vasu1712/chatwise-backend/internal/chat"
	"github.com/Vasu1712/chatwise-backend/internal/config"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/logging"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
	"github.com/Vasu1712/chatwise-backend/internal/storage/memory"
	"github.com/Vasu1712/chatwise-backend/internal/storage/postgres"
	"github.com/Vasu1712/chatwise-backend/internal/storage/valkey"
	"github.com/Vasu1712/chatwise-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	format := "json"
	if cfg.IsDevelopment() {
		format = "console"
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: format, Output: os.Stdout})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := livequery.NewHub()
	go hub.Run(ctx)

	store, err := openStore(ctx, cfg, hub, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("store unavailable")
	}
	defer store.Close()

	authService := auth.NewService(store, cfg.JWTSecret, cfg.TokenTTL, auth.LogNotifier{Log: logger}, logger)

	router := api.NewRouter(api.Deps{
		Chat: chat.Services{
			Store:    store,
			Creator:  chat.NewCreator(store, cfg.ChatIDMode, logger),
			Receipts: chat.NewReconciler(store, logger),
			Log:      logger,
		},
		Auth:       authService,
		Hub:        ws.NewHub(),
		Location:   cfg.Location(),
		CORSOrigin: cfg.CORSOrigin,
		Log:        logger,
	})

	// No WriteTimeout: WebSocket connections manage their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.Store).
			Str("chat_id_mode", cfg.ChatIDMode).
			Msg("starting chatwise server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()

	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, hub *livequery.Hub, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreValkey:
		s, err := valkey.NewStore(ctx, cfg.ValkeyURL, hub, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.NewPostgresDMStore(ctx, cfg.DatabaseURL, hub, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.NewDMStore(hub, logger), nil
	}
}
