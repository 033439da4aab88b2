package transport

import (
	"sync"
	"time"
)

// PipeConn is one end of an in-memory connection.
type PipeConn struct {
	inbox *inbox
	peer  *PipeConn
	name  string
	mu    sync.Mutex
}

// Pipe returns two connected ends. Frames sent on one end are received on
// the other in order. It backs loopback play and tests.
func Pipe() (*PipeConn, *PipeConn) {
	a := &PipeConn{inbox: newInbox(DefaultReceiveBuffer), name: "pipe:a"}
	b := &PipeConn{inbox: newInbox(DefaultReceiveBuffer), name: "pipe:b"}
	a.peer, b.peer = b, a
	return a, b
}

func (c *PipeConn) Send(frame []byte) error {
	if c.inbox.closed() || c.peer.inbox.closed() {
		return ErrClosed
	}
	copied := append([]byte(nil), frame...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.peer.inbox.deliver(copied) {
		return ErrClosed
	}
	return nil
}

func (c *PipeConn) TryReceive() ([]byte, error) {
	return c.inbox.poll()
}

func (c *PipeConn) Close() error {
	c.inbox.finish(ErrClosed)
	c.peer.inbox.finish(ErrClosed)
	return nil
}

func (c *PipeConn) CloseAfter(d time.Duration) {
	time.AfterFunc(d, func() { c.Close() })
}

func (c *PipeConn) RemoteAddr() string {
	return c.peer.name
}

// Closed reports whether either end has been closed.
func (c *PipeConn) Closed() bool {
	return c.inbox.closed()
}
