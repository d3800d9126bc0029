package display

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/artifact"
)

func TestNewHub(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	if hub == nil {
		t.Fatal("expected hub to be created")
	}

	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}

	if hub.broadcast == nil {
		t.Error("expected broadcast channel to be initialized")
	}

	if hub.register == nil {
		t.Error("expected register channel to be initialized")
	}

	if hub.unregister == nil {
		t.Error("expected unregister channel to be initialized")
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	go hub.Run()

	client := &Client{
		id:   "test-client",
		hub:  hub,
		send: make(chan []byte, 1),
	}

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", hub.ClientCount())
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastToMultipleClients(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	go hub.Run()

	client1 := &Client{
		id:   "client1",
		hub:  hub,
		send: make(chan []byte, 10),
	}

	client2 := &Client{
		id:   "client2",
		hub:  hub,
		send: make(chan []byte, 10),
	}

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	message := []byte("test broadcast")
	hub.Broadcast(message)
	time.Sleep(10 * time.Millisecond)

	for _, c := range []*Client{client1, client2} {
		select {
		case msg := <-c.send:
			if string(msg) != string(message) {
				t.Errorf("%s expected %s, got %s", c.id, message, msg)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s did not receive message", c.id)
		}
	}
}

func TestNotifyArtifactsRefreshed(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	go hub.Run()

	client := &Client{
		id:   "screen",
		hub:  hub,
		send: make(chan []byte, 10),
	}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.NotifyArtifactsRefreshed([]artifact.Artifact{{
		Category:    artifact.Categories[0],
		Path:        "/data/artifacts/dashboard_data_1_staff_2024-03-15.html",
		GeneratedAt: time.Now(),
	}})

	select {
	case raw := <-client.send:
		var msg RefreshMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unexpected payload: %v", err)
		}
		if msg.Type != "artifacts_refreshed" {
			t.Errorf("unexpected message type %q", msg.Type)
		}
		if len(msg.Slides) != 1 || msg.Slides[0].File != "dashboard_data_1_staff_2024-03-15.html" {
			t.Errorf("expected the slide file name, got %+v", msg.Slides)
		}
	case <-time.After(time.Second):
		t.Fatal("screen did not receive refresh message")
	}
}

func TestHubDropsStalledClient(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	go hub.Run()

	stalled := &Client{
		id:   "stalled",
		hub:  hub,
		send: make(chan []byte), // unbuffered and never read
	}
	hub.register <- stalled
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast([]byte("one"))
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected the stalled client to be dropped, got %d clients", hub.ClientCount())
	}
}
