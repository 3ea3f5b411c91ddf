package main

import (
	"log"
	"log/slog"
	"os"

	"dialog-processor/logger"
	"dialog-processor/src/config"
	"dialog-processor/src/server"
)

// @title Dialog Processor API
// @version 1.0
// @description Session management and background dialog processing with model-suggested replies

func main() {
	cfg := loadConfig()
	setupLogging()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}

func loadConfig() *config.GlobalConfig {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func setupLogging() {
	logger.Init()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(slogger)
}
