package handlers

import (
	"github.com/gofiber/contrib/websocket"
	log "github.com/sirupsen/logrus"
	ws "github.com/user/dexsettle/backend/internal/websocket"
)

// EventsWSEndpoint streams every committed receipt to the client. The feed
// is public; clients do not send anything but pings.
func EventsWSEndpoint(c *websocket.Conn) {
	client := &ws.Client{
		Conn: c,
		Send: make(chan []byte, 256),
	}
	ws.GlobalHub.Register <- client
	log.Debugf("WebSocket connection established: %s", c.RemoteAddr())

	go clientWritePump(client)
	// The connection is closed once the handler returns, so reading runs
	// here rather than in its own goroutine.
	clientReadPump(client)
}

// clientWritePump pumps messages from the hub to the websocket connection.
func clientWritePump(client *ws.Client) {
	for message := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Debugf("Error writing message to %s: %v", client.Conn.RemoteAddr(), err)
			return
		}
	}
}

// clientReadPump discards client messages until the connection fails, then
// unregisters the client.
func clientReadPump(client *ws.Client) {
	defer func() {
		ws.GlobalHub.Unregister <- client
		log.Debugf("Read pump stopped for %s", client.Conn.RemoteAddr())
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("Client disconnected unexpectedly %s: %v", client.Conn.RemoteAddr(), err)
			}
			return
		}
	}
}
