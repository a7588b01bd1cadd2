package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"omochi-bot/internal/app"
	"omochi-bot/internal/config"
	"omochi-bot/internal/logging"
	"omochi-bot/internal/syncmcp"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("❌ failed to load config: %v", err)
	}
	// stdout carries the protocol, so logs go to stderr.
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetOutput(os.Stderr)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("❌ failed to build app")
	}
	defer a.Close()

	server := syncmcp.New(a, logger.WithField("component", "mcp")).MCPServer("1.0.0")
	logger.Info("🔗 Starting sync MCP server on stdin/stdout...")
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		logger.WithError(err).Fatal("❌ Server failed")
	}
}
