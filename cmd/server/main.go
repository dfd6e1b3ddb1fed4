// cmd/server/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/shakescript/internal/app"
	"github.com/Corphon/shakescript/internal/config"
	"github.com/Corphon/shakescript/internal/utils"
)

func main() {
	// 1. configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. logging
	logger, err := utils.NewLogger(utils.LoggerOptions{
		Level: cfg.LogLevel,
		Dir:   cfg.LogDir,
		Debug: cfg.DebugMode,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. services and router
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	logger.Info("starting shakescript",
		zap.String("port", cfg.Port),
		zap.String("url", "http://localhost:"+cfg.Port))

	// 5. serve until signalled
	if err := application.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		application.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
}
