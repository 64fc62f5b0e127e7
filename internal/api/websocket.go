package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/receipt-emulator/internal/printer"
)

// WebSocket message types
const (
	EventActivity = "activity"
	EventJob      = "job"
	EventCommand  = "command"
	EventResponse = "response"
	EventError    = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
}

// Hub tracks WebSocket clients for broadcasts
type Hub struct {
	clients map[*WSClient]bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*WSClient]bool),
		logger:  logger,
	}
}

func (h *Hub) add(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

// remove unregisters a client and closes its send channel, which ends its
// write pump. Safe to call more than once.
func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(message WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client send buffer full, skip
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}
	s.hub.add(client)

	s.logger.Info("WebSocket client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.logger.Debug("WebSocket write error", zap.Error(err))
			c.server.hub.remove(c)
			// drain until remove closes the channel
			for range c.send {
			}
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.conn.Close()
		c.server.logger.Info("WebSocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("WebSocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventCommand:
		c.handleCommandEvent(msg.Data)
	default:
		c.sendError(fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

func (c *WSClient) handleCommandEvent(data map[string]interface{}) {
	cmd, ok := data["command"].(string)
	if !ok || cmd == "" {
		c.sendError("command is required")
		return
	}

	result := c.server.executor.Execute(cmd)
	if !result.Success {
		c.sendError(result.Error)
		return
	}

	response := map[string]interface{}{
		"success": true,
	}
	if result.Message != "" {
		response["message"] = result.Message
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.sendResponse(response)
}

// trySend queues a message unless the client is gone or its buffer is full
func (c *WSClient) trySend(msg WSMessage) {
	c.server.hub.mu.RLock()
	defer c.server.hub.mu.RUnlock()

	if !c.server.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *WSClient) sendResponse(data map[string]interface{}) {
	c.trySend(WSMessage{
		Event: EventResponse,
		Data:  data,
	})
}

func (c *WSClient) sendError(message string) {
	c.trySend(WSMessage{
		Event: EventError,
		Data: map[string]interface{}{
			"error": message,
		},
	})
}

// BroadcastActivity tells every client that the receipts changed. It never
// blocks, so it can run on the feed queue worker.
func (s *Server) BroadcastActivity() {
	s.hub.broadcast(WSMessage{
		Event: EventActivity,
		Data: map[string]interface{}{
			"time": time.Now(),
		},
	})
}

// BroadcastJob announces an applied feed job
func (s *Server) BroadcastJob(job printer.FeedJob) {
	s.hub.broadcast(WSMessage{
		Event: EventJob,
		Data: map[string]interface{}{
			"id":     job.ID,
			"source": job.Source,
			"size":   job.Size,
			"status": job.Status,
		},
	})
}
