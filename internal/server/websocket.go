package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/levyline/taxflow/internal/events"
	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

type (
	// Client represents a WebSocket client connection for event streaming
	Client struct {
		hub     *events.Hub
		conn    *websocket.Conn
		sub     *events.Subscription
		getExec ExecutionFunc
		done    chan struct{}
		once    sync.Once
	}

	// ExecutionFunc retrieves the current state of an execution for a new
	// subscription
	ExecutionFunc func(context.Context, api.ExecutionID) (*api.Execution, error)
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	incomingBufferSize = 16

	messageSubscribe  = "subscribe"
	messageSubscribed = "subscribed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an HTTP connection to WebSocket and streams
// execution events matching the client's subscription. No events are sent
// until the client subscribes
func HandleWebSocket(
	hub *events.Hub, w http.ResponseWriter, r *http.Request, get ExecutionFunc,
) *Client {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return nil
	}

	return &Client{
		hub:     hub,
		conn:    conn,
		getExec: get,
		done:    make(chan struct{}),
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	client := HandleWebSocket(s.eventHub, c.Writer, c.Request,
		s.engine.GetExecution,
	)
	if client == nil {
		return
	}
	s.registerWebSocket(client)
	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// Close terminates the client connection
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) run() {
	defer func() {
		if c.sub != nil {
			c.sub.Close()
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleSubscribe(message)

		case ev, ok := <-c.events():
			if !ok {
				c.sendClose()
				return
			}
			if !c.writeJSON(ev) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}

		case <-c.done:
			c.sendClose()
			return
		}
	}
}

// events returns the subscription channel, or nil before the client has
// subscribed so that the receive blocks
func (c *Client) events() <-chan *api.ExecutionEvent {
	if c.sub == nil {
		return nil
	}
	return c.sub.Events()
}

func (c *Client) readMessages(incoming chan []byte) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

func (c *Client) handleSubscribe(message []byte) {
	var req api.SubscribeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.Error(err))
		return
	}

	if req.Type != messageSubscribe {
		return
	}

	if c.sub != nil {
		c.sub.Close()
	}
	c.sub = c.hub.Subscribe(events.BuildFilter(&req.Data))
	c.sendSubscribed(req.Data.ExecutionID)
}

func (c *Client) sendSubscribed(id api.ExecutionID) {
	msg := api.SubscribedResult{Type: messageSubscribed, ID: id}
	if id != "" && c.getExec != nil {
		ex, err := c.getExec(context.Background(), id)
		if err != nil {
			slog.Warn("Subscribed execution unavailable",
				log.ExecutionID(id),
				log.Error(err))
		}
		msg.Execution = ex
	}
	c.writeJSON(msg)
}

func (c *Client) writeJSON(v any) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	deadline := time.Now().Add(writeWait)
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline) == nil
}

func (c *Client) sendClose() {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
