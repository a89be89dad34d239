package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware
	},
}

// Hub maintains the set of active websocket clients and pushes alert
// payloads to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps a stalled client from hanging the hub.
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[api] websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the connection and registers the client.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	log.Printf("[api] websocket client connected (total=%d)", total)

	// The stream is push-only, but the read loop is needed to notice
	// disconnects.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[api] websocket client disconnected (total=%d)", remaining)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[api] websocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends raw JSON to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}

// BroadcastAlerts pushes the current top alerts to subscribers, tagged with
// the event that triggered the refresh.
func (h *Hub) BroadcastAlerts(event string, alerts []models.Alert) {
	payload, err := json.Marshal(gin.H{
		"type":   "alerts",
		"event":  event,
		"alerts": alerts,
	})
	if err != nil {
		log.Printf("[api] alert broadcast marshal failed: %v", err)
		return
	}
	h.Broadcast(payload)
}
