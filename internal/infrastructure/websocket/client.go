package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// subscriptions tracks which workflow instances a client has subscribed to.
type subscriptions struct {
	instances map[string]bool
	mu        sync.RWMutex
}

func newSubscriptions() *subscriptions {
	return &subscriptions{instances: make(map[string]bool)}
}

// Client is one connected WebSocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *WSEvent

	id   string
	subs *subscriptions
}

func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *WSEvent, sendBufferSize),
		id:   id,
		subs: newSubscriptions(),
	}
}

// readPump pumps client commands into the hub. Runs until the connection
// closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
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
			break
		}

		var cmd WSCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendResponse(NewErrorResponse("error", "invalid command format"))
			continue
		}
		c.handleCommand(&cmd)
	}
}

// writePump pumps hub events to the connection, pinging on idle.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd *WSCommand) {
	switch cmd.Action {
	case CmdSubscribe:
		if cmd.InstanceID == "" {
			c.sendResponse(NewErrorResponse(CmdSubscribe, "instanceId required"))
			return
		}
		c.hub.Subscribe(c, cmd.InstanceID)
		c.sendResponse(NewSuccessResponse(CmdSubscribe, "subscribed to "+cmd.InstanceID))
	case CmdUnsubscribe:
		if cmd.InstanceID == "" {
			c.sendResponse(NewErrorResponse(CmdUnsubscribe, "instanceId required"))
			return
		}
		c.hub.Unsubscribe(c, cmd.InstanceID)
		c.sendResponse(NewSuccessResponse(CmdUnsubscribe, "unsubscribed from "+cmd.InstanceID))
	default:
		c.sendResponse(NewErrorResponse("error", "unknown command: "+cmd.Action))
	}
}

func (c *Client) sendResponse(resp *WSResponse) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(resp)
}
