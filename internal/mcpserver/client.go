package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the connection settings for the Modu platform API.
type Config struct {
	APIURL      string // base URL, e.g. "http://localhost:8080"
	AccessToken string // bearer access token for the acting user
	UserID      string // acting user's ID, used as the reservation customer
}

// ModuClient is a pure HTTP client for the Modu platform API.
type ModuClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewModuClient creates a client for the Modu platform.
func NewModuClient(cfg Config) *ModuClient {
	return &ModuClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is the platform's uniform response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// doRequest calls the platform and returns the unwrapped data payload.
func (c *ModuClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("unexpected response: %s", string(respBody))
	}
	if resp.StatusCode >= 400 || !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("API error (%d, %s): %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return env.Data, nil
}

// SearchShops browses the public shop directory.
func (c *ModuClient) SearchShops(ctx context.Context, limit, offset int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/shops", q, nil)
}

// ListServices returns a shop's service catalog.
func (c *ModuClient) ListServices(ctx context.Context, shopID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/shops/"+shopID+"/services", nil, nil)
}

// ListReservations returns the shop's reservations in a time window,
// optionally narrowed by status.
func (c *ModuClient) ListReservations(ctx context.Context, shopID, from, to, status string) (json.RawMessage, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	if status != "" {
		q.Set("status", status)
	}
	return c.doRequest(ctx, http.MethodGet, "/api/shops/"+shopID+"/reservations", q, nil)
}

// CreateReservation books the acting user into a shop.
func (c *ModuClient) CreateReservation(ctx context.Context, shopID string, serviceIDs []string, datetime string, pointsToApply int64, memo string) (json.RawMessage, error) {
	body := map[string]any{
		"customerId": c.cfg.UserID,
		"serviceIds": serviceIDs,
		"datetime":   datetime,
	}
	if pointsToApply > 0 {
		body["pointsToApply"] = pointsToApply
	}
	if memo != "" {
		body["memo"] = memo
	}
	return c.doRequest(ctx, http.MethodPost, "/api/shops/"+shopID+"/reservations", nil, body)
}

// GetReservation fetches one reservation with its status history.
func (c *ModuClient) GetReservation(ctx context.Context, shopID, reservationID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/shops/"+shopID+"/reservations/"+reservationID, nil, nil)
}

// CancelReservation moves the reservation to cancelled_by_user.
func (c *ModuClient) CancelReservation(ctx context.Context, shopID, reservationID, reason string) (json.RawMessage, error) {
	body := map[string]any{"to": "cancelled_by_user"}
	if reason != "" {
		body["reason"] = reason
	}
	return c.doRequest(ctx, http.MethodPatch, "/api/shops/"+shopID+"/reservations/"+reservationID, nil, body)
}

// PointsSummary returns the acting user's point position.
func (c *ModuClient) PointsSummary(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/points/summary", nil, nil)
}
