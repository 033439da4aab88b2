// Package transport carries packet frames between the client and the server
// over TCP or WebSocket. Every connection runs one reader goroutine that
// feeds a buffered channel so the owner can poll without blocking.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrClosed reports use of a connection after Close.
	ErrClosed = errors.New("transport: connection closed")
	// ErrUnsupportedScheme reports an address with an unknown scheme.
	ErrUnsupportedScheme = errors.New("transport: unsupported scheme")
)

// DefaultReceiveBuffer is how many frames may wait before the reader
// goroutine blocks.
const DefaultReceiveBuffer = 256

// Conn is one packet connection.
type Conn interface {
	// Send writes a complete frame.
	Send(frame []byte) error
	// TryReceive returns the next frame, or nil when nothing is pending. Once
	// the connection is gone and all frames are consumed it returns the
	// reason.
	TryReceive() ([]byte, error)
	// Close tears the connection down immediately.
	Close() error
	// CloseAfter closes the connection once d has passed, giving queued
	// writes time to reach the peer.
	CloseAfter(d time.Duration)
	// RemoteAddr names the peer for logs.
	RemoteAddr() string
}

// Options tunes Dial.
type Options struct {
	DialTimeout   time.Duration
	ReceiveBuffer int
}

// Dial connects to address. The scheme selects the transport: tcp:// (the
// default when no scheme is given), ws:// or wss://.
func Dial(ctx context.Context, address string, opts Options) (Conn, error) {
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	if opts.ReceiveBuffer <= 0 {
		opts.ReceiveBuffer = DefaultReceiveBuffer
	}
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	switch u.Scheme {
	case "tcp":
		conn, err := DialTCP(ctx, u.Host, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "ws", "wss":
		conn, err := DialWebSocket(ctx, u.String(), opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// inbox is the receive side shared by every transport.
type inbox struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
}

func newInbox(size int) *inbox {
	if size <= 0 {
		size = DefaultReceiveBuffer
	}
	return &inbox{
		frames: make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

// deliver hands a frame to the owner, giving up once the inbox is finished.
func (b *inbox) deliver(frame []byte) bool {
	select {
	case b.frames <- frame:
		return true
	case <-b.done:
		return false
	}
}

// finish records why no more frames will arrive. Only the first call counts.
func (b *inbox) finish(err error) {
	b.once.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		b.err = err
		close(b.done)
	})
}

func (b *inbox) poll() ([]byte, error) {
	select {
	case frame := <-b.frames:
		return frame, nil
	default:
	}
	select {
	case <-b.done:
		select {
		case frame := <-b.frames:
			return frame, nil
		default:
		}
		return nil, b.err
	default:
		return nil, nil
	}
}

func (b *inbox) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
