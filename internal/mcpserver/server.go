package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Modu tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("modu", "1.0.0")
	client := NewModuClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolSearchShops, h.HandleSearchShops)
	s.AddTool(ToolListServices, h.HandleListServices)
	s.AddTool(ToolCheckAvailability, h.HandleCheckAvailability)
	s.AddTool(ToolCreateReservation, h.HandleCreateReservation)
	s.AddTool(ToolCancelReservation, h.HandleCancelReservation)
	s.AddTool(ToolGetReservation, h.HandleGetReservation)
	s.AddTool(ToolMyPoints, h.HandleMyPoints)

	return s
}
