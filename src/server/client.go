package server

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB for larger JSON messages
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one WebSocket connection registered under a subscription key.
// UserID is set only in portfolio mode.
type Client struct {
	ID     string
	Key    string
	UserID string

	srv  *Server
	conn *websocket.Conn
	send chan *models.MWireMessage

	done      chan struct{}
	closeOnce sync.Once
}

// -----------------------------------------------------------------------------

func newClient(srv *Server, conn *websocket.Conn, key, userID string) *Client {
	bufferSize := srv.Config.Stream.SendBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Client{
		ID:     ulid.Make().String(),
		Key:    key,
		UserID: userID,
		srv:    srv,
		conn:   conn,
		// Buffered channel so one slow consumer never blocks a broadcast
		send: make(chan *models.MWireMessage, bufferSize),
		done: make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// trySend enqueues without blocking. False means the client is dead or too
// slow to keep.
func (c *Client) trySend(message *models.MWireMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

// shutdown closes the connection exactly once. The send channel is never
// closed; writePump exits through the done channel instead.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.srv.Registry.Leave(c.Key, c)
		c.shutdown()
		c.srv.Logger.Info("Client %s disconnected from %s", c.ID, c.Key)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.srv.Logger.Info("WebSocket error on %s: %v", c.Key, err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// -----------------------------------------------------------------------------

// handleMessage services keepalives and portfolio change signals; anything
// else is ignored.
func (c *Client) handleMessage(message []byte) {
	text := strings.TrimSpace(string(message))
	switch text {
	case models.SignalPing:
		// Keepalive bypasses the broadcast path
		c.trySend(&models.MWireMessage{
			Type:      models.MsgPong,
			Timestamp: utils.EpochSeconds(),
		})
	case models.SignalPortfolioChanged:
		if c.UserID != "" {
			c.srv.Logger.Info("Portfolio change signalled by user %s", c.UserID)
			c.srv.Portfolios.Refresh(c.UserID)
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.srv.Logger.Info("Write error on %s: %v", c.Key, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
