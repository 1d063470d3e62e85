package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	gw      *Gateway
	conn    *websocket.Conn
	session Session

	// Buffered channel of outbound frames. Only the hub sends on or closes it.
	send       chan []byte
	sendClosed bool
}

func newClient(gw *Gateway, conn *websocket.Conn, session Session, buffer int) *Client {
	return &Client{gw: gw, conn: conn, session: session, send: make(chan []byte, buffer)}
}

func (c *Client) Session() Session { return c.session }

// readPump decodes frames and runs their handlers in order. Returning ends the session.
func (c *Client) readPump() {
	defer func() {
		c.gw.disconnect(c)
		c.conn.Close()
		c.gw.sessions.Done()
	}()

	c.conn.SetReadLimit(c.gw.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.gw.log.Debug("websocket read error",
					zap.String("session_id", c.session.ID.String()), zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			c.gw.emitError(c, "Invalid event frame")
			continue
		}
		if frame.Event == EventLogout {
			return
		}
		c.gw.dispatch(c, frame)
	}
}

// writePump pumps frames from the hub to the websocket connection, one frame per message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.gw.sessions.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain what is already queued before going back to select.
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, next); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
