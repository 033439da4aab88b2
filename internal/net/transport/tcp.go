package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"lockstep/client/internal/net/packet"
)

// TCPConn frames packets on a stream socket using the size header.
type TCPConn struct {
	conn  net.Conn
	inbox *inbox
	mu    sync.Mutex
}

// DialTCP opens a TCP connection.
func DialTCP(ctx context.Context, address string, opts Options) (*TCPConn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return NewTCPConn(conn, opts.ReceiveBuffer), nil
}

// NewTCPConn wraps an established stream and starts its reader.
func NewTCPConn(conn net.Conn, receiveBuffer int) *TCPConn {
	c := &TCPConn{conn: conn, inbox: newInbox(receiveBuffer)}
	go c.readLoop()
	return c
}

func (c *TCPConn) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		frame, err := packet.ReadFrame(reader)
		if err != nil {
			c.inbox.finish(err)
			return
		}
		if !c.inbox.deliver(frame) {
			return
		}
	}
}

func (c *TCPConn) Send(frame []byte) error {
	if c.inbox.closed() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

func (c *TCPConn) TryReceive() ([]byte, error) {
	return c.inbox.poll()
}

func (c *TCPConn) Close() error {
	c.inbox.finish(ErrClosed)
	return c.conn.Close()
}

func (c *TCPConn) CloseAfter(d time.Duration) {
	time.AfterFunc(d, func() { c.Close() })
}

func (c *TCPConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
