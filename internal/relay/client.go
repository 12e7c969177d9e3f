package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP fits comfortably.
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one websocket connection to the relay. The hub goroutine owns
// name and send; the pumps only touch conn. Room membership lives in the
// registry.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	codec protocol.Codec
	log   *slog.Logger

	// ID is minted on accept and stays fixed for the connection.
	ID string

	name string

	// send is the outbound queue drained by WritePump. Only the hub
	// writes to it or closes it.
	send chan *protocol.Message
}

// NewClient wraps conn. The caller registers it and starts both pumps.
func NewClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec, id string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		codec: codec,
		log:   hub.log.With("participant", id, "codec", codec.Name()),
		ID:    id,
		send:  make(chan *protocol.Message, sendBuffer),
	}
}

// ReadPump pumps frames from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", "err", err)
			}
			return
		}

		msg, err := c.codec.Unmarshal(data)
		if err != nil {
			c.log.Warn("dropping undecodable frame", "err", err)
			continue
		}
		env, err := protocol.Parse(msg)
		if err != nil {
			c.log.Warn("dropping invalid message", "type", msg.Type, "err", err)
			continue
		}

		if !c.hub.dispatch(inbound{client: c, env: env}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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

			data, err := c.codec.Marshal(message)
			if err != nil {
				c.log.Error("encoding message", "type", message.Type, "err", err)
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.log.Warn("write failed", "err", err)
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
