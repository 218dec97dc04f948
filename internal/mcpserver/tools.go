package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Modu MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolSearchShops = mcp.NewTool("search_shops",
	mcp.WithDescription(
		"Browse bookable beauty shops on Modu (hair, nail, waxing, eyelash). "+
			"Returns verified, active shops with their type, address, and capacity. "+
			"Use this to find a shop before listing its services."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of shops to return (default 20)")),
	mcp.WithNumber("offset",
		mcp.Description("Number of shops to skip, for paging")),
)

var ToolListServices = mcp.NewTool("list_services",
	mcp.WithDescription(
		"List the service menu of a shop: service names, price range in KRW, "+
			"and duration in minutes. You need the service IDs from here to "+
			"create a reservation."),
	mcp.WithString("shop_id",
		mcp.Required(),
		mcp.Description("The shop's ID (e.g. 'shp_...') from search_shops")),
)

var ToolCheckAvailability = mcp.NewTool("check_availability",
	mcp.WithDescription(
		"Check how busy a shop is in a time window by listing its confirmed "+
			"reservations. Compare against the shop's capacity to find a free slot "+
			"before booking."),
	mcp.WithString("shop_id",
		mcp.Required(),
		mcp.Description("The shop's ID")),
	mcp.WithString("from",
		mcp.Required(),
		mcp.Description("Window start, RFC3339 (e.g. '2026-03-02T10:00:00Z')")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Window end, RFC3339")),
)

var ToolCreateReservation = mcp.NewTool("create_reservation",
	mcp.WithDescription(
		"Book one or more services at a shop for the acting user. "+
			"The reservation starts in 'requested' status until the shop confirms. "+
			"Points can be applied to reduce the amount payable."),
	mcp.WithString("shop_id",
		mcp.Required(),
		mcp.Description("The shop's ID")),
	mcp.WithArray("service_ids",
		mcp.Required(),
		mcp.Description("Service IDs from list_services (e.g. ['svc_...'])")),
	mcp.WithString("datetime",
		mcp.Required(),
		mcp.Description("Reservation start time, RFC3339, must be in the future")),
	mcp.WithNumber("points_to_apply",
		mcp.Description("Points to spend on this booking (1 point = 1 KRW)")),
	mcp.WithString("memo",
		mcp.Description("Optional note for the shop (e.g. style preferences)")),
)

var ToolCancelReservation = mcp.NewTool("cancel_reservation",
	mcp.WithDescription(
		"Cancel one of the acting user's reservations. Points applied to the "+
			"booking are refunded automatically."),
	mcp.WithString("shop_id",
		mcp.Required(),
		mcp.Description("The shop's ID")),
	mcp.WithString("reservation_id",
		mcp.Required(),
		mcp.Description("The reservation's ID (e.g. 'rsv_...')")),
	mcp.WithString("reason",
		mcp.Description("Optional cancellation reason shown to the shop")),
)

var ToolGetReservation = mcp.NewTool("get_reservation",
	mcp.WithDescription(
		"Fetch one reservation with its full status history "+
			"(requested, confirmed, in_progress, done, cancellations)."),
	mcp.WithString("shop_id",
		mcp.Required(),
		mcp.Description("The shop's ID")),
	mcp.WithString("reservation_id",
		mcp.Required(),
		mcp.Description("The reservation's ID")),
)

var ToolMyPoints = mcp.NewTool("my_points",
	mcp.WithDescription(
		"Check the acting user's point balance on Modu: total balance, "+
			"available amount (minus active holds), and lifetime earned/spent."),
)
