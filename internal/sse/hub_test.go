package sse

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dustin/Linkstat/internal/storage"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestHub_Subscribe(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("owner-1")
	if ch == nil {
		t.Fatal("expected non-nil channel")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}

	cancel()
	cancel()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after cancel, got %d", hub.ClientCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestHub_BroadcastIsPerOwner(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe("owner-1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("owner-2")
	defer cancel2()

	hub.BroadcastEvent("owner-1", "click", []byte(`{"n":1}`))

	evt := receive(t, ch1)
	if evt.Type != "click" || string(evt.Payload) != `{"n":1}` {
		t.Errorf("got %+v", evt)
	}
	select {
	case evt := <-ch2:
		t.Errorf("other owner received %+v", evt)
	default:
	}
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("owner-1")
	defer cancel()

	for range cap(ch) + 5 {
		hub.BroadcastEvent("owner-1", "view", []byte("{}"))
	}
	if got := hub.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("owner-1")
	defer cancel()

	created := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	hub.Publish(storage.Event{
		ID:             "ev-1",
		LinkID:         "link-1",
		OwnerID:        "owner-1",
		Kind:           storage.KindClick,
		IP:             "203.0.113.9",
		UserAgent:      "secret-agent",
		Country:        "Germany",
		DeviceType:     "mobile",
		ReferrerSource: "Instagram",
		CreatedAt:      created,
	})

	evt := receive(t, ch)
	if evt.Type != "click" {
		t.Errorf("Type = %q, want click", evt.Type)
	}
	var got map[string]any
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["link_id"] != "link-1" || got["country"] != "Germany" || got["referrer_source"] != "Instagram" {
		t.Errorf("payload = %s", evt.Payload)
	}
	for _, hidden := range []string{"ip", "user_agent", "owner_id"} {
		if _, ok := got[hidden]; ok {
			t.Errorf("payload exposes %q", hidden)
		}
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Publish(storage.Event{ID: "ev-1", OwnerID: "owner-1", Kind: storage.KindView})
	if hub.Dropped() != 0 {
		t.Error("nothing should be dropped without subscribers")
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := hub.Subscribe("owner-1")
			defer cancel()
			select {
			case <-ch:
			case <-time.After(10 * time.Millisecond):
			}
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.BroadcastEvent("owner-1", "click", []byte("{}"))
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestWriteEvent(t *testing.T) {
	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{"named", Event{Type: "click", Payload: []byte(`{"a":1}`)}, "event: click\ndata: {\"a\":1}\n\n"},
		{"unnamed", Event{Payload: []byte("hi")}, "data: hi\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteEvent(&buf, tt.evt); err != nil {
				t.Fatalf("WriteEvent() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
