package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ModuClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ModuClient) *Handlers {
	return &Handlers{client: client}
}

// HandleSearchShops browses the shop directory.
func (h *Handlers) HandleSearchShops(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	offset := req.GetInt("offset", 0)

	raw, err := h.client.SearchShops(ctx, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search shops: %v", err)), nil
	}

	text, err := formatShopList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse shops: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListServices returns a shop's service menu.
func (h *Handlers) HandleListServices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shopID := req.GetString("shop_id", "")
	if shopID == "" {
		return mcp.NewToolResultError("shop_id is required"), nil
	}

	raw, err := h.client.ListServices(ctx, shopID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list services: %v", err)), nil
	}

	text, err := formatServiceList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse services: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCheckAvailability summarizes confirmed bookings in a window.
func (h *Handlers) HandleCheckAvailability(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shopID := req.GetString("shop_id", "")
	if shopID == "" {
		return mcp.NewToolResultError("shop_id is required"), nil
	}
	from := req.GetString("from", "")
	to := req.GetString("to", "")
	if from == "" || to == "" {
		return mcp.NewToolResultError("from and to are required"), nil
	}
	if _, err := time.Parse(time.RFC3339, from); err != nil {
		return mcp.NewToolResultError("from must be RFC3339 (e.g. 2026-03-02T10:00:00Z)"), nil
	}
	if _, err := time.Parse(time.RFC3339, to); err != nil {
		return mcp.NewToolResultError("to must be RFC3339 (e.g. 2026-03-02T18:00:00Z)"), nil
	}

	raw, err := h.client.ListReservations(ctx, shopID, from, to, "confirmed")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check availability: %v", err)), nil
	}

	text, err := formatAvailability(raw, from, to)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reservations: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCreateReservation books the acting user into a shop.
func (h *Handlers) HandleCreateReservation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shopID := req.GetString("shop_id", "")
	if shopID == "" {
		return mcp.NewToolResultError("shop_id is required"), nil
	}
	datetime := req.GetString("datetime", "")
	if datetime == "" {
		return mcp.NewToolResultError("datetime is required"), nil
	}
	if _, err := time.Parse(time.RFC3339, datetime); err != nil {
		return mcp.NewToolResultError("datetime must be RFC3339 (e.g. 2026-03-02T14:00:00Z)"), nil
	}

	var serviceIDs []string
	if raw := req.GetArguments()["service_ids"]; raw != nil {
		if arr, ok := raw.([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok {
					serviceIDs = append(serviceIDs, s)
				}
			}
		}
	}
	if len(serviceIDs) == 0 {
		return mcp.NewToolResultError("service_ids is required"), nil
	}

	points := int64(req.GetInt("points_to_apply", 0))
	memo := req.GetString("memo", "")

	raw, err := h.client.CreateReservation(ctx, shopID, serviceIDs, datetime, points, memo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create reservation: %v", err)), nil
	}

	text, err := formatReservation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reservation: %v", err)), nil
	}
	return mcp.NewToolResultText("Reservation requested. The shop must confirm it.\n\n" + text), nil
}

// HandleCancelReservation cancels one of the user's reservations.
func (h *Handlers) HandleCancelReservation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shopID := req.GetString("shop_id", "")
	if shopID == "" {
		return mcp.NewToolResultError("shop_id is required"), nil
	}
	reservationID := req.GetString("reservation_id", "")
	if reservationID == "" {
		return mcp.NewToolResultError("reservation_id is required"), nil
	}
	reason := req.GetString("reason", "")

	raw, err := h.client.CancelReservation(ctx, shopID, reservationID, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel reservation: %v", err)), nil
	}

	text, err := formatReservation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reservation: %v", err)), nil
	}
	return mcp.NewToolResultText("Reservation cancelled. Applied points were refunded.\n\n" + text), nil
}

// HandleGetReservation fetches one reservation with its history.
func (h *Handlers) HandleGetReservation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	shopID := req.GetString("shop_id", "")
	if shopID == "" {
		return mcp.NewToolResultError("shop_id is required"), nil
	}
	reservationID := req.GetString("reservation_id", "")
	if reservationID == "" {
		return mcp.NewToolResultError("reservation_id is required"), nil
	}

	raw, err := h.client.GetReservation(ctx, shopID, reservationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get reservation: %v", err)), nil
	}

	text, err := formatReservationDetail(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reservation: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleMyPoints returns the user's point balance.
func (h *Handlers) HandleMyPoints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.PointsSummary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get points: %v", err)), nil
	}

	text, err := formatPoints(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse points: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatShopList(raw json.RawMessage) (string, error) {
	var resp struct {
		Shops []map[string]any `json:"shops"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected shops response format")
	}
	if len(resp.Shops) == 0 {
		return "No bookable shops found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d shop(s):\n\n", len(resp.Shops))
	for i, s := range resp.Shops {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, getString(s, "name"), getString(s, "id"))
		fmt.Fprintf(&sb, "   Type: %s", getString(s, "type"))
		if cap, ok := getFloat(s, "capacity"); ok {
			fmt.Fprintf(&sb, " | Capacity: %.0f concurrent bookings", cap)
		}
		sb.WriteString("\n")
		if addr := getString(s, "address"); addr != "" {
			fmt.Fprintf(&sb, "   Address: %s\n", addr)
		}
		if i < len(resp.Shops)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatServiceList(raw json.RawMessage) (string, error) {
	var resp struct {
		Services []map[string]any `json:"services"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected services response format")
	}
	if len(resp.Services) == 0 {
		return "This shop has no services listed.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d service(s):\n\n", len(resp.Services))
	for i, s := range resp.Services {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, getString(s, "name"), getString(s, "id"))
		min, _ := getFloat(s, "priceMin")
		max, _ := getFloat(s, "priceMax")
		if min == max {
			fmt.Fprintf(&sb, "   Price: %.0f KRW", min)
		} else {
			fmt.Fprintf(&sb, "   Price: %.0f-%.0f KRW", min, max)
		}
		if dur, ok := getFloat(s, "durationMinutes"); ok {
			fmt.Fprintf(&sb, " | Duration: %.0f min", dur)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatAvailability(raw json.RawMessage, from, to string) (string, error) {
	var resp struct {
		Reservations []map[string]any `json:"reservations"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected reservations response format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Window %s to %s:\n", from, to)
	if len(resp.Reservations) == 0 {
		sb.WriteString("No confirmed bookings. All capacity is free.")
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, "%d confirmed booking(s) occupy capacity:\n\n", len(resp.Reservations))
	for _, r := range resp.Reservations {
		fmt.Fprintf(&sb, "- %s to %s\n", getString(r, "datetime"), getString(r, "endTime"))
	}
	sb.WriteString("\nCompare against the shop's capacity to pick a free slot.")
	return sb.String(), nil
}

func formatReservation(raw json.RawMessage) (string, error) {
	var r map[string]any
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", err
	}
	return reservationSummary(r), nil
}

func formatReservationDetail(raw json.RawMessage) (string, error) {
	var resp struct {
		Reservation map[string]any   `json:"reservation"`
		StatusLog   []map[string]any `json:"statusLog"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Reservation == nil {
		// Some endpoints return the reservation at the top level.
		return formatReservation(raw)
	}

	var sb strings.Builder
	sb.WriteString(reservationSummary(resp.Reservation))
	if len(resp.StatusLog) > 0 {
		sb.WriteString("\nHistory:\n")
		for _, l := range resp.StatusLog {
			fmt.Fprintf(&sb, "  %s -> %s", getString(l, "from"), getString(l, "to"))
			if reason := getString(l, "reason"); reason != "" {
				fmt.Fprintf(&sb, " (%s)", reason)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func reservationSummary(r map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reservation %s\n", getString(r, "id"))
	fmt.Fprintf(&sb, "  Status: %s\n", getString(r, "status"))
	fmt.Fprintf(&sb, "  When: %s\n", getString(r, "datetime"))
	if total, ok := getFloat(r, "totalAmount"); ok {
		fmt.Fprintf(&sb, "  Total: %.0f KRW", total)
		if pts, ok := getFloat(r, "pointsUsed"); ok && pts > 0 {
			fmt.Fprintf(&sb, " (%.0f paid with points)", pts)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatPoints(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Point balance:\n")
	if v, ok := getFloat(m, "balance"); ok {
		fmt.Fprintf(&sb, "  Balance: %.0f\n", v)
	}
	if v, ok := getFloat(m, "available"); ok {
		fmt.Fprintf(&sb, "  Available: %.0f (after active holds)\n", v)
	}
	if v, ok := getFloat(m, "totalEarned"); ok {
		fmt.Fprintf(&sb, "  Lifetime earned: %.0f\n", v)
	}
	if v, ok := getFloat(m, "totalSpent"); ok {
		fmt.Fprintf(&sb, "  Lifetime spent: %.0f\n", v)
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
