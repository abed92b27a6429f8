package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	apperrors "schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Close codes used by the gateway.
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
	CloseTryAgainLater   = websocket.CloseTryAgainLater
)

var errSendBufferFull = errors.New("send buffer full")

// InboundHandler stores a chat line sent by a joined session.
type InboundHandler interface {
	HandleInbound(ctx context.Context, client *Client, content string) error
}

// Client is one joined gateway session.
type Client struct {
	UserID   string
	Username string
	RoomID   string

	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	state atomic.Int32
}

func NewClient(conn *websocket.Conn, userID, username, roomID string) *Client {
	c := &Client{
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticating))
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// enqueue reports false when the session cannot keep up.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close sends a close frame with the given code and tears the connection down.
func (c *Client) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
	})
}

// Serve joins the session to its room and pumps frames until the transport closes.
func (c *Client) Serve(ctx context.Context, m *Manager, handler InboundHandler) {
	m.Register(c)
	go c.WritePump()
	c.ReadPump(ctx, m, handler)
}

// ReadPump reads inbound frames and hands valid ones to handler.
func (c *Client) ReadPump(ctx context.Context, m *Manager, handler InboundHandler) {
	defer func() {
		m.Unregister(c)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error for %s in room %s: %v", c.UserID, c.RoomID, err)
			}
			return
		}

		content, ok := DecodeInbound(raw)
		if !ok {
			continue
		}

		if err := handler.HandleInbound(ctx, c, content); err != nil {
			switch {
			case apperrors.Is(err, apperrors.CodeTooManyRequests):
				logger.Warn("Dropping frame from %s in room %s: %v", c.UserID, c.RoomID, err)
				continue
			case apperrors.Is(err, apperrors.CodeNotMember), apperrors.Is(err, apperrors.CodeForbidden):
				c.Close(ClosePolicyViolation, "not a member of this room")
				return
			case apperrors.Is(err, apperrors.CodeValidation), apperrors.Is(err, apperrors.CodeBadRequest):
				continue
			default:
				logger.Error("Closing %s in room %s after store failure: %v", c.UserID, c.RoomID, err)
				c.Close(CloseInternalError, "message could not be stored")
				return
			}
		}
	}
}

// WritePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("WebSocket write error for %s: %v", c.UserID, err)
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
