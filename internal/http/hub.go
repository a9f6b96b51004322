package http

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"meeting-transcript-service/internal/models"
)

// Hub fans run events out to websocket subscribers. Every client subscribes
// to exactly one run ID and receives that run's chunk progress and completion
// events as JSON messages.
type Hub struct {
	clients    map[*websocket.Conn]string
	register   chan subscription
	unregister chan *websocket.Conn
	broadcast  chan envelope
	quit       chan struct{}
	closeOnce  sync.Once
}

type subscription struct {
	conn  *websocket.Conn
	runID string
}

type envelope struct {
	runID   string
	payload any
}

// NewHub creates a hub. Call Run in a goroutine before serving connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]string),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan envelope, 256),
		quit:       make(chan struct{}),
	}
}

// Run owns the client map. It exits when Close is called.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.clients[sub.conn] = sub.runID
			log.Debug().Str("runId", sub.runID).Int("clients", len(h.clients)).Msg("Websocket client subscribed")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			log.Debug().Int("clients", len(h.clients)).Msg("Websocket client disconnected")

		case msg := <-h.broadcast:
			for conn, runID := range h.clients {
				if runID != msg.runID {
					continue
				}
				if err := conn.WriteJSON(msg.payload); err != nil {
					log.Warn().Err(err).Str("runId", runID).Msg("Websocket write failed, dropping client")
					conn.Close()
					delete(h.clients, conn)
				}
			}

		case <-h.quit:
			for conn := range h.clients {
				conn.Close()
			}
			return
		}
	}
}

// Close disconnects every client and stops the Run loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// OnChunkProgress implements runs.Listener.
func (h *Hub) OnChunkProgress(event models.ChunkProgress) {
	h.send(event.RunID, event)
}

// OnRunCompleted implements runs.Listener.
func (h *Hub) OnRunCompleted(event models.RunCompleted) {
	h.send(event.RunID, event)
}

// send never blocks the pipeline: when the broadcast buffer is full the
// event is dropped, slow websocket consumers cannot stall transcription.
func (h *Hub) send(runID string, payload any) {
	select {
	case h.broadcast <- envelope{runID: runID, payload: payload}:
	default:
		log.Warn().Str("runId", runID).Msg("Websocket broadcast buffer full, dropping event")
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeRun upgrades the request and subscribes the client to one run's
// events. The read pump discards client messages and unregisters the
// connection when it drops.
func (h *Hub) ServeRun(w http.ResponseWriter, r *http.Request, runID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	select {
	case h.register <- subscription{conn: conn, runID: runID}:
	case <-h.quit:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.quit:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
