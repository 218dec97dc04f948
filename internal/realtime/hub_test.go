package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/modubeauty/modu/internal/reservation"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func createdEvent(shopID string, status reservation.Status) reservation.Event {
	return reservation.Event{
		Type:        "reservation.created",
		Reservation: &reservation.Reservation{ShopID: shopID, Status: status},
		At:          time.Now(),
	}
}

// ---------------------------------------------------------------------------
// subscription filter tests
// ---------------------------------------------------------------------------

func TestWants_EmptySubscriptionReceivesEverything(t *testing.T) {
	client := &Client{shopID: "shp_1"}

	if !client.wants(createdEvent("shp_1", reservation.StatusRequested)) {
		t.Error("unfiltered client should receive all events")
	}
}

func TestWants_TypeFilter(t *testing.T) {
	client := &Client{shopID: "shp_1", sub: Subscription{
		Types: []string{"reservation.transitioned"},
	}}

	created := createdEvent("shp_1", reservation.StatusRequested)
	if client.wants(created) {
		t.Error("should NOT receive reservation.created")
	}

	transitioned := created
	transitioned.Type = "reservation.transitioned"
	if !client.wants(transitioned) {
		t.Error("should receive reservation.transitioned")
	}
}

func TestWants_StatusFilter(t *testing.T) {
	client := &Client{shopID: "shp_1", sub: Subscription{
		Statuses: []string{string(reservation.StatusConfirmed)},
	}}

	if client.wants(createdEvent("shp_1", reservation.StatusRequested)) {
		t.Error("should NOT receive requested status")
	}
	if !client.wants(createdEvent("shp_1", reservation.StatusConfirmed)) {
		t.Error("should receive confirmed status")
	}
}

// ---------------------------------------------------------------------------
// hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{hub: h, shopID: "shp_1", send: make(chan []byte, 256)}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_PublishReachesShopClients(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	mine := &Client{hub: h, shopID: "shp_1", send: make(chan []byte, 256)}
	other := &Client{hub: h, shopID: "shp_2", send: make(chan []byte, 256)}
	h.register <- mine
	h.register <- other
	time.Sleep(50 * time.Millisecond)

	h.Publish("shp_1", createdEvent("shp_1", reservation.StatusRequested))

	select {
	case msg := <-mine.send:
		if len(msg) == 0 {
			t.Error("expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for shop event")
	}

	select {
	case <-other.send:
		t.Error("client of another shop should NOT receive the event")
	case <-time.After(100 * time.Millisecond):
		// good, isolated
	}
}

func TestHub_FilteredPublish(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub: h, shopID: "shp_1", send: make(chan []byte, 256),
		sub: Subscription{Statuses: []string{string(reservation.StatusConfirmed)}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Publish("shp_1", createdEvent("shp_1", reservation.StatusRequested))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("client should NOT receive filtered-out status")
	default:
		// filtered out
	}

	h.Publish("shp_1", createdEvent("shp_1", reservation.StatusConfirmed))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("client should receive confirmed event")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// hub stopped
	case <-time.After(2 * time.Second):
		t.Error("hub did not stop after context cancellation")
	}
}
