// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Corphon/shakescript/internal/services"
	"github.com/Corphon/shakescript/internal/utils"
)

const (
	wsPingTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// pages and socket are served from the same origin; the sid cookie is
	// what scopes a socket to a visitor
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketConnection is the part of *websocket.Conn the hub uses
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// StatusMessage is pushed to the browser whenever the session's
// generation status changes
type StatusMessage struct {
	Type      string                    `json:"type"`
	Status    services.GenerationStatus `json:"status,omitempty"`
	Progress  int                       `json:"progress"`
	Message   string                    `json:"message,omitempty"`
	StoryID   int                       `json:"story_id,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

func statusMessage(u services.ProgressUpdate) StatusMessage {
	return StatusMessage{
		Type:      "status",
		Status:    u.Status,
		Progress:  u.Progress,
		Message:   u.Message,
		StoryID:   u.StoryID,
		Timestamp: u.UpdatedAt,
	}
}

// WebSocketClient is one open status socket
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastPing  atomic.Int64 // unix nanos
}

func newWebSocketClient(conn WebSocketConnection, sessionID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
	}
	client.UpdatePing()
	return client
}

// Close closes the connection once
func (client *WebSocketClient) Close() {
	client.closeOnce.Do(func() {
		close(client.done)
		client.conn.Close()
	})
}

// IsClosed reports whether Close has been called
func (client *WebSocketClient) IsClosed() bool {
	select {
	case <-client.done:
		return true
	default:
		return false
	}
}

// UpdatePing records client activity
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired reports whether the client has been silent for longer than timeout
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// SendJSON queues v for the write pump, dropping it when the queue is full
func (client *WebSocketClient) SendJSON(v interface{}) bool {
	if client.IsClosed() {
		return false
	}
	msg, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		return false
	}
}

// StatusHub tracks the open status sockets per session
type StatusHub struct {
	progress *services.ProgressService
	metrics  *utils.Metrics
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*WebSocketClient]struct{}

	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	closeOnce  sync.Once
	loop       sync.WaitGroup
	conns      sync.WaitGroup

	cleanupInterval time.Duration
	pingTimeout     time.Duration
}

// NewStatusHub starts a hub. Close stops it.
func NewStatusHub(progress *services.ProgressService, metrics *utils.Metrics, logger *zap.Logger) *StatusHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := &StatusHub{
		progress:        progress,
		metrics:         metrics,
		logger:          logger.Named("ws"),
		clients:         make(map[string]map[*WebSocketClient]struct{}),
		register:        make(chan *WebSocketClient),
		unregister:      make(chan *WebSocketClient),
		done:            make(chan struct{}),
		cleanupInterval: 30 * time.Second,
		pingTimeout:     wsPingTimeout,
	}
	hub.loop.Add(1)
	go hub.run()
	return hub
}

func (h *StatusHub) run() {
	defer h.loop.Done()
	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*WebSocketClient]struct{})
			}
			h.clients[client.sessionID][client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.sessionID]; ok {
				delete(set, client)
				if len(set) == 0 {
					delete(h.clients, client.sessionID)
				}
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.closeExpired()

		case <-h.done:
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					client.Close()
				}
			}
			h.clients = make(map[string]map[*WebSocketClient]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *StatusHub) closeExpired() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for client := range set {
			if client.IsExpired(h.pingTimeout) {
				h.logger.Debug("closing silent socket", zap.String("session_id", client.sessionID))
				client.Close()
			}
		}
	}
}

// Count returns the number of open sockets, optionally for one session
func (h *StatusHub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessionID != "" {
		return len(h.clients[sessionID])
	}
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Broadcast sends v to every socket of the session
func (h *StatusHub) Broadcast(sessionID string, v interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for client := range h.clients[sessionID] {
		if client.SendJSON(v) {
			sent++
		}
	}
	return sent
}

// Close shuts every socket and waits for their goroutines
func (h *StatusHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	h.loop.Wait()
	h.conns.Wait()
}

func (h *StatusHub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Serve streams the session's generation status over conn until either
// side closes. It blocks.
func (h *StatusHub) Serve(conn WebSocketConnection, sessionID string) {
	if h.closed() {
		conn.Close()
		return
	}
	h.conns.Add(1)
	defer h.conns.Done()

	client := newWebSocketClient(conn, sessionID)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	h.metrics.SocketOpened()
	tracker := h.progress.Tracker(sessionID)
	updates := tracker.Subscribe()

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		h.writePump(client)
	}()
	go func() {
		defer pumps.Done()
		h.forward(client, updates)
	}()

	h.readPump(client)

	client.Close()
	tracker.Unsubscribe(updates)
	pumps.Wait()

	select {
	case h.unregister <- client:
	case <-h.done:
	}
	h.metrics.SocketClosed()
	h.logger.Debug("socket closed", zap.String("session_id", sessionID))
}

// forward relays tracker updates to the client
func (h *StatusHub) forward(client *WebSocketClient, updates <-chan services.ProgressUpdate) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !client.SendJSON(statusMessage(update)) && !client.IsClosed() {
				h.logger.Warn("status update dropped", zap.String("session_id", client.sessionID))
			}
		case <-client.done:
			return
		}
	}
}

func (h *StatusHub) readPump(client *WebSocketClient) {
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(h.pingTimeout))
	})

	for {
		client.conn.SetReadDeadline(time.Now().Add(h.pingTimeout))
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !client.IsClosed() {
				h.logger.Debug("socket read failed", zap.Error(err))
			}
			return
		}
		client.UpdatePing()

		var message map[string]interface{}
		if err := json.Unmarshal(data, &message); err != nil {
			client.SendJSON(map[string]interface{}{"type": "error", "error": "invalid message"})
			continue
		}
		h.handleMessage(client, message)
	}
}

func (h *StatusHub) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer client.Close()

	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// handleMessage answers the few messages a browser may send
func (h *StatusHub) handleMessage(client *WebSocketClient, message map[string]interface{}) {
	msgType, _ := message["type"].(string)
	switch msgType {
	case "ping":
		client.SendJSON(map[string]interface{}{"type": "pong", "timestamp": time.Now()})
	case "status":
		client.SendJSON(statusMessage(h.progress.Tracker(client.sessionID).Snapshot()))
	default:
		client.SendJSON(map[string]interface{}{"type": "error", "error": "unknown message type"})
	}
}
