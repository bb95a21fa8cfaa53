// Package main is the entry point of the gallery server.
//
// main stays minimal:
//  1. read configuration (.env, optional YAML file, environment)
//  2. create the logger
//  3. hand both to internal/server and start it
//
// The cmd/fragments CLI offers the same server as `fragments serve`.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sakif/fragments/internal/config"
	"github.com/sakif/fragments/internal/server"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
