// Package sse fans recorded interactions out to live dashboard streams.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/Linkstat/internal/storage"
)

// Event represents an SSE event with a type and payload
type Event struct {
	Type    string
	Payload []byte
}

// Hub is a per-owner SSE broadcaster. Slow subscribers miss events rather
// than hold up the publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Event]struct{}
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of the owner's events and a cleanup function.
// The cleanup function may be called more than once.
func (h *Hub) Subscribe(ownerID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	set, ok := h.clients[ownerID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.clients[ownerID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(set, ch)
			if len(set) == 0 {
				delete(h.clients, ownerID)
			}
			close(ch)
		})
	}
}

// BroadcastEvent sends a named event to every subscriber of ownerID.
func (h *Hub) BroadcastEvent(ownerID, eventType string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients[ownerID] {
		select {
		case ch <- Event{Type: eventType, Payload: payload}:
		default:
			h.dropped.Add(1)
		}
	}
}

// liveEvent is the part of a fact record a live view shows. The client
// address and raw signature stay server side.
type liveEvent struct {
	ID             string    `json:"id"`
	LinkID         string    `json:"link_id"`
	Kind           string    `json:"kind"`
	Country        string    `json:"country"`
	City           string    `json:"city"`
	DeviceType     string    `json:"device_type"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	ReferrerSource string    `json:"referrer_source"`
	UTMCampaign    string    `json:"utm_campaign,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publish broadcasts a recorded interaction to its owner's subscribers,
// using the interaction kind as the event type.
func (h *Hub) Publish(ev storage.Event) {
	h.mu.Lock()
	listening := len(h.clients[ev.OwnerID]) > 0
	h.mu.Unlock()
	if !listening {
		return
	}

	payload, err := json.Marshal(liveEvent{
		ID:             ev.ID,
		LinkID:         ev.LinkID,
		Kind:           string(ev.Kind),
		Country:        ev.Country,
		City:           ev.City,
		DeviceType:     ev.DeviceType,
		Browser:        ev.Browser,
		OS:             ev.OS,
		ReferrerSource: ev.ReferrerSource,
		UTMCampaign:    ev.UTMCampaign,
		CreatedAt:      ev.CreatedAt,
	})
	if err != nil {
		slog.Warn("failed to encode live event", "event_id", ev.ID, "error", err)
		return
	}
	h.BroadcastEvent(ev.OwnerID, string(ev.Kind), payload)
}

// ClientCount returns the number of subscribers across all owners.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// WriteEvent writes ev in text/event-stream framing.
func WriteEvent(w io.Writer, ev Event) error {
	if ev.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", ev.Payload)
	return err
}
