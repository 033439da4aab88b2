package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandInPast reports an echo scheduled for a frame that already ran.
	ErrCommandInPast = errors.New("sim: command scheduled for a past frame")
	// ErrCommandOutOfOrder reports an echo scheduled before an earlier echo.
	ErrCommandOutOfOrder = errors.New("sim: command frames out of order")
)

// Scheduled is a command echoed by the server together with the frame it
// must execute on.
type Scheduled struct {
	Command Command
	Frame   uint32
	Mine    bool
}

// IncomingQueue holds echoed commands in server order until their frame.
type IncomingQueue struct {
	items []Scheduled
}

// Push appends an echo. The server assigns frames monotonically, so a frame
// lower than the last queued one is rejected.
func (q *IncomingQueue) Push(s Scheduled) error {
	if n := len(q.items); n > 0 && s.Frame < q.items[n-1].Frame {
		return fmt.Errorf("%w: frame %d after %d", ErrCommandOutOfOrder, s.Frame, q.items[n-1].Frame)
	}
	q.items = append(q.items, s)
	return nil
}

// Release removes and returns the commands due on frame, in order. A
// leftover command for an earlier frame means the simulation diverged.
func (q *IncomingQueue) Release(frame uint32) ([]Scheduled, error) {
	n := 0
	for n < len(q.items) && q.items[n].Frame <= frame {
		if q.items[n].Frame < frame {
			return nil, fmt.Errorf("%w: command for frame %d at frame %d", ErrCommandInPast, q.items[n].Frame, frame)
		}
		n++
	}
	if n == 0 {
		return nil, nil
	}
	due := make([]Scheduled, n)
	copy(due, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	return due, nil
}

// Len reports the number of queued echoes.
func (q *IncomingQueue) Len() int {
	return len(q.items)
}

// Reset drops every queued echo.
func (q *IncomingQueue) Reset() {
	q.items = nil
}
