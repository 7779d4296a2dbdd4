package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// Client is one live WebSocket connection. All writes go through the
// buffered send channel so the hub never blocks on a slow socket.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// done signals the write pump to stop. send is never closed so a
	// concurrent broadcast holding a member snapshot cannot panic.
	done chan struct{}
	log  *zap.Logger

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, log *zap.Logger) *Client {
	return &Client{
		ID:    uuid.NewString(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		log:   log,
		rooms: make(map[string]struct{}),
	}
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) trackRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrackRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Client) roomIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		close(c.done)
		_ = c.conn.Close()
		c.log.Info("socket disconnected", zap.String("client", c.ID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("socket read", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("socket frame parse", zap.String("client", c.ID), zap.Error(err))
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Event {
	case "join_conversation":
		var conversationID string
		if err := json.Unmarshal(f.Data, &conversationID); err != nil || conversationID == "" {
			return
		}
		c.log.Info("socket joining room",
			zap.String("client", c.ID), zap.String("room", conversationID))
		c.hub.Join(conversationID, c)

	case "send_message":
		var msg struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(f.Data, &msg); err != nil || msg.ConversationID == "" {
			return
		}
		// Echo to everyone else in the room; the sender already has it.
		c.hub.BroadcastExcept(msg.ConversationID, "new_message", json.RawMessage(f.Data), c)

	default:
		c.log.Debug("socket unknown event",
			zap.String("client", c.ID), zap.String("event", f.Event))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
