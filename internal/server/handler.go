package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// LiveHandler serves the dashboard's WebSocket feed. Each client gets a
// snapshot on connect and then every accepted report.
type LiveHandler struct {
	upgrader       websocket.Upgrader
	store          LiveStore
	logger         zerolog.Logger
	allowedOrigins []string
	clients        map[*liveClient]struct{}
	mutex          sync.RWMutex
}

type liveClient struct {
	id          string
	conn        *websocket.Conn
	send        chan *models.Message
	remoteAddr  string
	connectedAt time.Time
}

// Compile-time interface check
var _ Broadcaster = (*LiveHandler)(nil)

// NewLiveHandler creates a new live feed handler
func NewLiveHandler(store LiveStore, logger zerolog.Logger, allowedOrigins ...string) *LiveHandler {
	h := &LiveHandler{
		store:          store,
		logger:         logger.With().Str("component", "live").Logger(),
		allowedOrigins: allowedOrigins,
		clients:        make(map[*liveClient]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request's Origin against the configured allowlist.
// A missing Origin header is a same-origin request.
func (h *LiveHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP upgrades the connection and streams messages until the client leaves
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &liveClient{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan *models.Message, sendBuffer),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}

	snapshot, err := models.NewMessage(models.MessageTypeSnapshot, models.SnapshotMessage{
		DeviceStatus: h.store.DeviceStatus(),
		Latest:       h.store.LatestSensorData(),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build snapshot")
		conn.Close()
		return
	}
	client.send <- snapshot

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	h.mutex.Unlock()
	h.logger.Info().Str("client_id", client.id).Str("remote", client.remoteAddr).Msg("Dashboard client connected")

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards client messages and keeps the read deadline fresh
func (h *LiveHandler) readPump(client *liveClient) {
	defer h.removeClient(client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("remote", client.remoteAddr).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump is the only writer on the connection
func (h *LiveHandler) writePump(client *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Str("remote", client.remoteAddr).Msg("Write failed")
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) removeClient(client *liveClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.logger.Info().
		Str("client_id", client.id).
		Str("remote", client.remoteAddr).
		Dur("connected_for", time.Since(client.connectedAt)).
		Msg("Dashboard client disconnected")
}

// Broadcast queues msg for every client. Slow clients miss messages rather
// than stalling the report handlers.
func (h *LiveHandler) Broadcast(msg *models.Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Warn().Str("client_id", client.id).Msg("Client send buffer full, dropping message")
		}
	}
}

// ClientCount returns the number of connected dashboard clients
func (h *LiveHandler) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *LiveHandler) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
