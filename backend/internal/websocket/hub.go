package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
)

// Client represents a single WebSocket client connection.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte // Buffered channel for outbound messages
}

// Message is the envelope of everything pushed to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub manages WebSocket clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	quit       chan struct{}
	mu         sync.RWMutex
}

var GlobalHub *Hub

// NewHub creates and initializes a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run starts the Hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	log.Println("Starting WebSocket Hub...")
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debugf("Client registered: %s", remoteAddr(client))

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Debugf("Client unregistered: %s", remoteAddr(client))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					log.Warnf("Client send buffer full, closing connection: %s", remoteAddr(client))
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			log.Println("WebSocket Hub stopped")
			return
		}
	}
}

func (h *Hub) Stop() { close(h.quit) }

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks: when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error marshalling %s message: %v", msg.Type, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warnf("Broadcast queue full, dropping %s message", msg.Type)
	}
}

// BroadcastReceipt pushes a committed receipt to every client. It is meant
// to be registered as a chain subscriber.
func (h *Hub) BroadcastReceipt(r *chain.Receipt) {
	h.Broadcast(Message{Type: "receipt", Data: r})
}

func remoteAddr(c *Client) string {
	if c.Conn == nil || c.Conn.Conn == nil {
		return "unknown"
	}
	return c.Conn.RemoteAddr().String()
}

// InitializeGlobalHub creates and runs the global Hub instance.
func InitializeGlobalHub() {
	GlobalHub = NewHub()
	go GlobalHub.Run()
}
