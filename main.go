package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dsa-agent/app"
	"dsa-agent/config"
	"dsa-agent/web"

	"go.uber.org/zap"
)

func main() {
	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load(tempLogger)

	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A failed init still serves; /chat answers 503 until the process is fixed and restarted.
	dsaApp := app.New(ctx, cfg, logger)
	defer dsaApp.Close()

	webServer := web.NewServer(dsaApp, logger, cfg)

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting DSA assistant web server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
