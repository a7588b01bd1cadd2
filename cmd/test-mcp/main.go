package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"omochi-bot/internal/syncmcp"
)

// Starts sync-mcp-server and reads the monthly export status through it.
func main() {
	fmt.Println("🧪 Testing sync MCP server")
	fmt.Println("==========================")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := syncmcp.NewClient()
	if err := client.Connect(ctx); err != nil {
		fmt.Printf("❌ Connection failed: %v\n", err)
		fmt.Printf("💡 Build the server first (go build ./cmd/sync-mcp-server) or set %s\n", syncmcp.ServerPathEnv)
		os.Exit(1)
	}
	defer client.Close()
	fmt.Println("✅ Connected successfully!")

	out, err := client.Call(ctx, syncmcp.ToolMonthlyStatus, nil)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("📋 %s:\n%s\n", syncmcp.ToolMonthlyStatus, out)
}
