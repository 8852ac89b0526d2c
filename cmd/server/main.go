// Package main is the entry point for the accounts API server.
//
// main only reads configuration, builds the logger and hands both to
// internal/server. All request handling lives in internal/.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/accounts/internal/config"
	"github.com/sakif/accounts/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Defaults, then an optional config file, then .env, then the
	// environment. CONFIG_FILE works when flags are awkward (containers).
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a yaml/json/toml config file")
	envFile := flag.String("env", ".env", "path to a dotenv file (ignored when missing)")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		// No logger settings yet; fall back to the default handler.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := server.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
