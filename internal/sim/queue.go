package sim

// DefaultCommandsPerFrame caps how many commands are handed to the
// transport during one frame.
const DefaultCommandsPerFrame = 2

const outgoingSentMetricKey = "sim_outgoing_sent_total"

// SubmitStatus reports what OutgoingQueue.Submit did with a command.
type SubmitStatus uint8

const (
	// SubmitAccepted means the command was transmitted immediately.
	SubmitAccepted SubmitStatus = iota + 1
	// SubmitQueued means the command waits for a later frame.
	SubmitQueued
)

func (s SubmitStatus) String() string {
	switch s {
	case SubmitAccepted:
		return "accepted"
	case SubmitQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Transmitter hands a command to the connection. The callback travels with
// the command so it is registered against the frame it actually leaves in.
type Transmitter interface {
	Transmit(item Outgoing) error
}

// TransmitFunc adapts a function to Transmitter.
type TransmitFunc func(item Outgoing) error

func (f TransmitFunc) Transmit(item Outgoing) error {
	return f(item)
}

// OutgoingQueue paces commands to at most quota per frame. Commands that do
// not fit wait in a FIFO that is drained before any newer command is let
// through, so transmission order always equals submission order.
type OutgoingQueue struct {
	quota   int
	sent    int
	pending *CommandBuffer
	out     Transmitter
	metrics telemetryMetrics
}

// NewOutgoingQueue builds a queue transmitting through out. A quota below
// one selects DefaultCommandsPerFrame.
func NewOutgoingQueue(quota int, out Transmitter, metrics telemetryMetrics) *OutgoingQueue {
	if quota < 1 {
		quota = DefaultCommandsPerFrame
	}
	return &OutgoingQueue{
		quota:   quota,
		pending: NewCommandBuffer(8, metrics),
		out:     out,
		metrics: metrics,
	}
}

// Quota reports the per-frame cap.
func (q *OutgoingQueue) Quota() int {
	return q.quota
}

// Len reports how many commands are waiting.
func (q *OutgoingQueue) Len() int {
	return q.pending.Len()
}

// SentThisFrame reports how much of the quota is used.
func (q *OutgoingQueue) SentThisFrame() int {
	return q.sent
}

// Submit transmits cmd if the frame quota allows and nothing older is
// waiting; otherwise it queues it with cb until a later frame.
func (q *OutgoingQueue) Submit(cmd Command, cb Callback) (SubmitStatus, error) {
	item := Outgoing{Command: cmd, Callback: cb}
	if q.pending.Len() > 0 || q.sent >= q.quota {
		q.pending.Push(item)
		return SubmitQueued, nil
	}
	if err := q.transmit(item); err != nil {
		return 0, err
	}
	return SubmitAccepted, nil
}

// Advance starts a new frame: the quota resets and waiting commands are
// drained up to it. It returns how many were transmitted.
func (q *OutgoingQueue) Advance() (int, error) {
	q.sent = 0
	drained := 0
	for q.sent < q.quota {
		item, ok := q.pending.Pop()
		if !ok {
			break
		}
		if err := q.transmit(item); err != nil {
			return drained, err
		}
		drained++
	}
	return drained, nil
}

// Reset discards waiting commands and returns them in order. Their
// callbacks were never registered and are left to the caller.
func (q *OutgoingQueue) Reset() []Outgoing {
	q.sent = 0
	return q.pending.Drain()
}

func (q *OutgoingQueue) transmit(item Outgoing) error {
	if err := q.out.Transmit(item); err != nil {
		return err
	}
	q.sent++
	if q.metrics != nil {
		q.metrics.Add(outgoingSentMetricKey, 1)
	}
	return nil
}
