// Command ragchat-mcp serves the knowledge base as MCP tools over stdio.
// Logs go to stderr; stdout carries the protocol.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/app"
	"github.com/kailas-cloud/ragchat/internal/config"
	logpkg "github.com/kailas-cloud/ragchat/internal/logger"
	mcpTransport "github.com/kailas-cloud/ragchat/internal/transport/mcp"
	"github.com/kailas-cloud/ragchat/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragchat-mcp:", err)
		os.Exit(1)
	}
}

func run() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, logpkg.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragchat MCP server",
		zap.String("version", version.Version),
		zap.String("db_driver", cfg.Database.Driver),
	)

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return mcpTransport.NewServer(a.Search, a.Knowledge, a.Chat, logger).ServeStdio()
}
