package sim

import "sync"

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferGrowthMetricKey    = "sim_command_buffer_growth_total"
)

// Outgoing is a command waiting for transmission together with the
// callback to register once it is actually sent.
type Outgoing struct {
	Command  Command
	Callback Callback
}

// CommandBuffer stores commands awaiting transmission in a ring that grows
// when full. Reads from other goroutines (diagnostics) are safe.
type CommandBuffer struct {
	mu      sync.Mutex
	data    []Outgoing
	head    int
	tail    int
	count   int
	metrics telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewCommandBuffer constructs a ring buffer with the provided initial
// capacity.
func NewCommandBuffer(capacity int, metrics telemetryMetrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		data:    make([]Outgoing, capacity),
		metrics: metrics,
	}
}

// Capacity reports the current backing capacity.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push appends a command, growing the ring when it is full.
func (b *CommandBuffer) Push(item Outgoing) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		b.growLocked()
	}
	b.data[b.tail] = item
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
}

// Peek returns the oldest entry without removing it.
func (b *CommandBuffer) Peek() (Outgoing, bool) {
	if b == nil {
		return Outgoing{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return Outgoing{}, false
	}
	return b.data[b.head], true
}

// Pop removes and returns the oldest entry.
func (b *CommandBuffer) Pop() (Outgoing, bool) {
	if b == nil {
		return Outgoing{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return Outgoing{}, false
	}
	item := b.data[b.head]
	b.data[b.head] = Outgoing{}
	b.head = (b.head + 1) % len(b.data)
	b.count--
	b.storeOccupancyLocked()
	return item, true
}

// Drain returns all staged entries in FIFO order and clears the buffer.
func (b *CommandBuffer) Drain() []Outgoing {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	items := make([]Outgoing, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		items[i] = b.data[idx]
		b.data[idx] = Outgoing{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return items
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *CommandBuffer) growLocked() {
	grown := make([]Outgoing, len(b.data)*2)
	for i := 0; i < b.count; i++ {
		grown[i] = b.data[(b.head+i)%len(b.data)]
	}
	b.data = grown
	b.head = 0
	b.tail = b.count
	if b.metrics != nil {
		b.metrics.Add(commandBufferGrowthMetricKey, 1)
	}
}

func (b *CommandBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
}
