package relay

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// Connection is a Peer that can also read the messages of its client.
type Connection interface {
	Peer
	ReceiveMessage() (protocol.Message, error)
	RemoteAddr() net.Addr
}

var _ Connection = (*WebSocketConnection)(nil)

// WebSocketConnection carries one JSON message per text frame.
type WebSocketConnection struct {
	clientID string
	conn     *websocket.Conn
	config   Config
	closed   int32

	messagesSent     uint64
	messagesReceived uint64

	// Write mutex to ensure thread-safe writes
	writeMu sync.Mutex
}

func NewWebSocketConnection(clientID string, conn *websocket.Conn, config Config) *WebSocketConnection {
	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	return &WebSocketConnection{clientID: clientID, conn: conn, config: config}
}

func (c *WebSocketConnection) ID() string {
	return c.clientID
}

func (c *WebSocketConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WebSocketConnection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Send writes msg as a text frame.
func (c *WebSocketConnection) Send(msg protocol.Message) error {
	if c.IsClosed() {
		return ErrPeerClosed
	}

	err := writeFrame(msg, func(frame []byte) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		if c.config.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		}
		return errors.Wrap(c.conn.WriteMessage(websocket.TextMessage, frame), "failed to write message")
	})
	if err != nil {
		return err
	}

	atomic.AddUint64(&c.messagesSent, 1)
	return nil
}

// ReceiveMessage blocks until the client sends a message.
func (c *WebSocketConnection) ReceiveMessage() (protocol.Message, error) {
	if c.IsClosed() {
		return protocol.Message{}, ErrPeerClosed
	}

	if c.config.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, errors.Wrap(err, "failed to read message")
	}
	if messageType != websocket.TextMessage {
		return protocol.Message{}, errors.Wrap(protocol.ErrInvalidMessage, "expected text message")
	}

	atomic.AddUint64(&c.messagesReceived, 1)
	return protocol.Decode(data)
}

func (c *WebSocketConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}
