// Modu MCP Server - exposes the reservation platform as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/modubeauty/modu/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:      envOrDefault("MODU_API_URL", "http://localhost:8080"),
		AccessToken: os.Getenv("MODU_ACCESS_TOKEN"),
		UserID:      os.Getenv("MODU_USER_ID"),
	}

	if cfg.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "MODU_ACCESS_TOKEN is required")
		os.Exit(1)
	}
	if cfg.UserID == "" {
		fmt.Fprintln(os.Stderr, "MODU_USER_ID is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
