package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsCloseWait = time.Second

// ErrTextMessage reports a text frame on a binary-only connection.
var ErrTextMessage = errors.New("transport: unexpected text message")

// WebSocketConn carries one packet per binary message.
type WebSocketConn struct {
	conn  *websocket.Conn
	inbox *inbox
	mu    sync.Mutex
}

// DialWebSocket opens a WebSocket connection to rawURL.
func DialWebSocket(ctx context.Context, rawURL string, opts Options) (*WebSocketConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", rawURL, err)
	}
	return NewWebSocketConn(conn, opts.ReceiveBuffer), nil
}

// NewWebSocketConn wraps an established connection and starts its reader.
func NewWebSocketConn(conn *websocket.Conn, receiveBuffer int) *WebSocketConn {
	c := &WebSocketConn{conn: conn, inbox: newInbox(receiveBuffer)}
	go c.readLoop()
	return c
}

func (c *WebSocketConn) readLoop() {
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.inbox.finish(err)
			return
		}
		if kind != websocket.BinaryMessage {
			c.inbox.finish(ErrTextMessage)
			return
		}
		if !c.inbox.deliver(payload) {
			return
		}
	}
}

func (c *WebSocketConn) Send(frame []byte) error {
	if c.inbox.closed() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *WebSocketConn) TryReceive() ([]byte, error) {
	return c.inbox.poll()
}

func (c *WebSocketConn) Close() error {
	c.inbox.finish(ErrClosed)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(wsCloseWait))
	return c.conn.Close()
}

func (c *WebSocketConn) CloseAfter(d time.Duration) {
	time.AfterFunc(d, func() { c.Close() })
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
