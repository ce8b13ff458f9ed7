package websocket

import (
	"sync"

	"github.com/rs/zerolog"
)

// broadcastMsg is one event routed to every client subscribed to
// instanceID.
type broadcastMsg struct {
	instanceID string
	event      *WSEvent
}

// Hub fans engine events out to subscribed WebSocket clients, indexed by
// workflow instance id.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byInstanceID map[string]map[*Client]bool

	logger zerolog.Logger
	mu     sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *broadcastMsg, 256),
		byInstanceID: make(map[string]map[*Client]bool),
		logger:       log,
	}
}

// Run is the hub's event loop; call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.logger.Debug().Str("client_id", client.id).Int("total_clients", len(h.clients)).Msg("websocket client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	client.subs.mu.RLock()
	for instanceID := range client.subs.instances {
		if clients, ok := h.byInstanceID[instanceID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byInstanceID, instanceID)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.logger.Debug().Str("client_id", client.id).Int("total_clients", len(h.clients)).Msg("websocket client unregistered")
}

// Broadcast sends event to every client subscribed to instanceID.
func (h *Hub) Broadcast(instanceID string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{instanceID: instanceID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.byInstanceID[msg.instanceID]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- msg.event:
		default:
			h.logger.Warn().Str("client_id", client.id).Str("event_type", msg.event.Type).Msg("client send buffer full, dropping event")
		}
	}
}

// Subscribe registers client to receive events for instanceID.
func (h *Hub) Subscribe(client *Client, instanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	client.subs.instances[instanceID] = true
	if h.byInstanceID[instanceID] == nil {
		h.byInstanceID[instanceID] = make(map[*Client]bool)
	}
	h.byInstanceID[instanceID][client] = true
}

// Unsubscribe removes a prior Subscribe.
func (h *Hub) Unsubscribe(client *Client, instanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	delete(client.subs.instances, instanceID)
	if clients, ok := h.byInstanceID[instanceID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byInstanceID, instanceID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
