// Package display pushes refresh notifications to the office screens over
// websockets. Screens reload the slideshow host page when told the current
// artifact set changed.
package display

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/artifact"
)

// RefreshMessage is sent to every connected screen when the artifact set
// changes.
type RefreshMessage struct {
	Type       string      `json:"type"`
	ServerTime int64       `json:"serverTime"`
	Slides     []SlideInfo `json:"slides"`
}

// SlideInfo identifies one slide by its file name on the web host.
type SlideInfo struct {
	Tag         int       `json:"tag"`
	Slug        string    `json:"slug"`
	File        string    `json:"file"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to fan out
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex to protect clients map
	mu sync.RWMutex

	// Logger
	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", h.ClientCount()).
				Msg("screen connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("screen disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.broadcastRaw(message)
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// NotifyArtifactsRefreshed broadcasts the new artifact selection. It
// implements the pipeline's notifier contract.
func (h *Hub) NotifyArtifactsRefreshed(selected []artifact.Artifact) {
	msg := RefreshMessage{
		Type:       "artifacts_refreshed",
		ServerTime: time.Now().Unix(),
	}
	for _, a := range selected {
		msg.Slides = append(msg.Slides, SlideInfo{
			Tag:         a.Category.Tag,
			Slug:        a.Category.Slug,
			File:        filepath.Base(a.Path),
			GeneratedAt: a.GeneratedAt,
		})
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal refresh message")
		return
	}
	h.Broadcast(data)
	h.logger.Debug().Int("slides", len(msg.Slides)).Msg("refresh broadcasted")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastRaw sends a message to all clients. It takes the write lock
// because stalled clients are dropped from the map inline.
func (h *Hub) broadcastRaw(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}
