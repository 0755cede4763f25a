package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// userEvent is an internal struct for routing events to a single customer
type userEvent struct {
	UserID uuid.UUID
	Event  Event
}

// Hub maintains the set of active clients and broadcasts order events to
// them. Staff connections receive every event; customer connections only
// receive events about their own orders.
type Hub struct {
	// Staff clients (ADMIN, SHIPPER)
	staff map[*Client]bool

	// Customer clients by user ID
	rooms map[uuid.UUID]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages
	broadcastStaff chan Event
	broadcastUser  chan *userEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		staff:          make(map[*Client]bool),
		rooms:          make(map[uuid.UUID]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcastStaff: make(chan Event, 256),
		broadcastUser:  make(chan *userEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if client.isStaff {
				h.staff[client] = true
			} else {
				if h.rooms[client.userID] == nil {
					h.rooms[client.userID] = make(map[*Client]bool)
				}
				h.rooms[client.userID][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if client.isStaff {
				if _, exists := h.staff[client]; exists {
					delete(h.staff, client)
					close(client.send)
				}
			} else if clients, ok := h.rooms[client.userID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.rooms, client.userID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcastStaff:
			message, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.staff {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.staff, client)
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcastUser:
			message, err := json.Marshal(event.Event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			clients := h.rooms[event.UserID]
			for client := range clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.rooms[event.UserID], client)
					if len(h.rooms[event.UserID]) == 0 {
						delete(h.rooms, event.UserID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all connected staff clients
// This is the public API for handlers to broadcast events
func (h *Hub) Broadcast(event Event) {
	h.broadcastStaff <- event
}

// BroadcastToUser sends an event to a single customer's connections
func (h *Hub) BroadcastToUser(userID uuid.UUID, event Event) {
	h.broadcastUser <- &userEvent{
		UserID: userID,
		Event:  event,
	}
}
