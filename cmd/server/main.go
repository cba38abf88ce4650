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

	"github.com/RichardoC/chatpad/internal/api"
	"github.com/RichardoC/chatpad/internal/config"
	"github.com/RichardoC/chatpad/internal/db"
	"github.com/RichardoC/chatpad/internal/llm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath, db.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer func() { err = multierr.Append(err, database.Close()) }()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	created, err := database.EnsureDefaultConversation(ctx)
	if err != nil {
		return err
	}
	if created {
		logger.Info("created default conversation")
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init LLM client: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY is not set; replies will explain the missing key")
	}
	chat := llm.NewService(client, database, cfg.LLM.DefaultModel, logger)
	handler := api.NewHandler(database, chat, cfg.LLM.Models, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.ListenAddr),
			zap.String("db_path", cfg.DBPath),
			zap.String("llm_base_url", cfg.LLM.BaseURL),
			zap.String("default_model", cfg.LLM.DefaultModel))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
