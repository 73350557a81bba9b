package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/crossrank/crossrank/internal/run"
)

const (
	// writeWait bounds a single broadcast write so one stalled client
	// cannot hold the run pipeline.
	writeWait = 5 * time.Second
	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so a healthy client always
	// has a ping to answer.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboards only
	},
}

// WSMessage is the envelope for everything sent over the socket.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans run progress events out to connected websocket clients. It
// implements run.Sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*sync.Mutex)}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts one run event to every client. Clients whose write
// fails are dropped.
func (h *Hub) Publish(ev run.Event) {
	data, err := json.Marshal(WSMessage{Type: "run_event", Payload: ev})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal run event")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mu := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mu)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutexes[i].Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()

		if err != nil {
			log.Warn().Err(err).Msg("Failed to send run event to client")
			h.drop(conn)
		}
	}
}

// ServeWS upgrades the connection and holds it until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	wmu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = wmu
	total := len(h.clients)
	h.mu.Unlock()

	log.Debug().Int("total", total).Msg("Websocket client connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		h.drop(conn)
		conn.Close()
		log.Debug().Int("remaining", h.ClientCount()).Msg("Websocket client disconnected")
	}()

	go h.keepalive(conn, wmu, done)

	// Drain client messages; pongs extend the read deadline, content is
	// ignored.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("Websocket error")
			}
			return
		}
	}
}

// keepalive pings the client until the connection goes away. The write
// mutex is shared with Publish.
func (h *Hub) keepalive(conn *websocket.Conn, wmu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			wmu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}
