package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/service/community"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 * 1024
	sendQueueSize  = 32
)

// StatusSink accepts status updates sent over the socket.
type StatusSink interface {
	UpdateStatus(ctx context.Context, u user.User, in community.StatusInput) (community.Status, error)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is one authenticated websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	user     user.User
	userID   string
	send     chan []byte
	statuses StatusSink
}

func NewClient(hub *Hub, conn *websocket.Conn, u user.User, statuses StatusSink) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		user:     u,
		userID:   u.ID,
		send:     make(chan []byte, sendQueueSize),
		statuses: statuses,
	}
}

// enqueue never blocks; a slow client loses the message instead.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		logging.Warn().Str("user_id", c.userID).Msg("[websocket] send queue full, message dropped")
		return false
	}
}

// Run serves the connection until it closes and returns how many other
// connections the user still has open.
func (c *Client) Run(ctx context.Context) int {
	c.hub.Register(c)
	c.hub.SendToClient(c, EventConnected, map[string]string{"userId": c.userID, "room": Room(c.userID)})

	go c.writePump()
	return c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) int {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("user_id", c.userID).Msg("[websocket] read error")
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError(string(apperr.KindValidation), "invalid message")
			continue
		}
		c.handle(ctx, msg)
	}

	return c.hub.Unregister(c)
}

func (c *Client) handle(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case "status":
		if c.statuses == nil {
			c.sendError(string(apperr.KindUnavailable), "status updates unavailable")
			return
		}
		var in community.StatusInput
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			c.sendError(string(apperr.KindValidation), "invalid status payload")
			return
		}
		if _, err := c.statuses.UpdateStatus(ctx, c.user, in); err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				c.sendError(string(appErr.Kind), appErr.Message)
				return
			}
			c.sendError("INTERNAL_ERROR", "status update failed")
		}
	case "ping":
		c.hub.SendToClient(c, EventPong, nil)
	default:
		c.sendError(string(apperr.KindValidation), "unsupported message type: "+msg.Type)
	}
}

func (c *Client) sendError(code, message string) {
	c.hub.SendToClient(c, EventError, errorData{Code: code, Message: message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
