// Package signaling is the client end of the relay's websocket.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marymwortman-lang/PureConnect/internal/dns"
	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

var ErrClosed = errors.New("signaling connection closed")

// Options tune Dial. The zero value dials with JSON and the system resolver.
type Options struct {
	Codec    protocol.Codec
	Resolver *dns.Resolver
	Logger   *slog.Logger
}

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn     *websocket.Conn
	codec    protocol.Codec
	log      *slog.Logger
	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}
	once     sync.Once
}

// Dial connects to the relay at serverURL. A non-JSON codec is requested
// through the codec query parameter.
func Dial(ctx context.Context, serverURL string, opts Options) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if opts.Codec == nil {
		opts.Codec = protocol.JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Codec.Name() != protocol.CodecJSON {
		q := u.Query()
		q.Set("codec", opts.Codec.Name())
		u.RawQuery = q.Encode()
	}

	dialer := *websocket.DefaultDialer
	if opts.Resolver != nil {
		dialer.NetDialContext = opts.Resolver.DialContext
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		codec:    opts.Codec,
		log:      opts.Logger.With("server", u.Host),
		incoming: make(chan *protocol.Message, queueSize),
		outgoing: make(chan *protocol.Message, queueSize),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump reads frames until the connection fails, then closes incoming.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("signaling read ended", "err", err)
			}
			return
		}

		msg, err := c.codec.Unmarshal(data)
		if err != nil {
			c.log.Warn("dropping undecodable frame from relay", "err", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued messages and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				c.log.Error("encoding message", "type", message.Type, "err", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.log.Warn("signaling write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues m for the relay. It fails once the client is closed.
func (c *Client) Send(m *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- m:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming is closed when the connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}
