package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/config"
	"github.com/zhouzirui/finbot/backend/internal/handler"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	"github.com/zhouzirui/finbot/backend/internal/model/persona"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
	"github.com/zhouzirui/finbot/backend/internal/service/chat"
	"github.com/zhouzirui/finbot/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using system environment variables only", zap.Error(envErr))
	}

	archive, err := openArchive(cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open transcript archive", zap.Error(err))
	}
	defer func() {
		if err := archive.Close(); err != nil {
			logger.Warn("failed to close transcript archive", zap.Error(err))
		}
	}()

	personaStore := persona.NewMemoryStore(persona.Seed())

	aiService, err := initAI(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal("failed to initialize AI service", zap.String("provider", cfg.AI.Provider), zap.Error(err))
	}

	chatService := chat.NewService(personaStore, aiService, chat.Options{
		Archive:     archive,
		TurnTimeout: cfg.AI.TurnTimeout,
		Logger:      logger.Named("chat"),
	})

	router := handler.NewRouter(handler.Deps{
		Personas:       personaStore,
		Chat:           chatService,
		Archive:        archive,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	if err := startServer(ctx, cfg.Server, router, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// initAI builds the generation service. Missing credentials are not fatal: the
// service stays nil and session creation reports ErrConfiguration. Any other
// failure is returned.
func initAI(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*ai.Service, error) {
	svc, err := ai.NewService(ctx, cfg, logger)
	switch {
	case errors.Is(err, ai.ErrConfiguration):
		logger.Warn("AI credentials missing, sessions will be rejected until configured",
			zap.String("provider", cfg.Provider))
		return nil, nil
	case err != nil:
		return nil, err
	}
	logger.Info("AI service initialized", zap.String("backend", svc.BackendName()))
	return svc, nil
}

func openArchive(cfg config.StoreConfig, logger *zap.Logger) (store.Repository, error) {
	if cfg.TranscriptDBPath == "" {
		logger.Info("transcript archive: memory")
		return store.NewMemory(), nil
	}
	logger.Info("transcript archive: sqlite", zap.String("path", cfg.TranscriptDBPath))
	db, err := store.NewSQLite(cfg.TranscriptDBPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("FinBot backend listening", zap.String("addr", serverCfg.Addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
