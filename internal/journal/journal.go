// Package journal keeps a short history of executed frames so a desync can
// be reported with the frames and commands that led up to it.
package journal

import (
	"sync"
	"time"

	"lockstep/client/internal/sim"
)

// CommandRecord identifies one command executed during a frame.
type CommandRecord struct {
	Fingerprint sim.Fingerprint `json:"fingerprint"`
	Action      sim.Action      `json:"action"`
	Company     sim.CompanyID   `json:"company"`
	Mine        bool            `json:"mine,omitempty"`
}

// Entry is one recorded frame.
type Entry struct {
	Frame      uint32          `json:"frame"`
	Checksum   uint32          `json:"checksum"`
	Commands   []CommandRecord `json:"commands,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Eviction describes an entry dropped from the window.
type Eviction struct {
	Frame  uint32
	Reason string
}

// RecordResult reports the window after a Record call.
type RecordResult struct {
	Size    int
	Oldest  uint32
	Newest  uint32
	Evicted []Eviction
}

// Journal is a rolling window of recent frames bounded by count and age.
// Commands noted between two Record calls are attached to the second.
type Journal struct {
	mu        sync.RWMutex
	entries   []Entry
	pending   []CommandRecord
	maxFrames int
	maxAge    time.Duration
	now       func() time.Time
}

// New constructs a journal keeping at most capacity frames no older than
// maxAge. A zero capacity disables recording; a zero age disables the age
// bound.
func New(capacity int, maxAge time.Duration) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		entries:   make([]Entry, 0, capacity),
		maxFrames: capacity,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (j *Journal) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	j.mu.Lock()
	j.now = now
	j.mu.Unlock()
}

// NoteCommand stages a command executed during the frame in progress.
func (j *Journal) NoteCommand(rec CommandRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.maxFrames == 0 {
		return
	}
	j.pending = append(j.pending, rec)
}

// Record closes the current frame with its checksum, enforcing retention
// limits by age and count.
func (j *Journal) Record(frame, checksum uint32) RecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxFrames == 0 {
		j.entries = j.entries[:0]
		j.pending = nil
		return RecordResult{}
	}

	entry := Entry{Frame: frame, Checksum: checksum, RecordedAt: j.now()}
	if len(j.pending) > 0 {
		entry.Commands = j.pending
		j.pending = nil
	}
	j.entries = append(j.entries, entry)

	var evicted []Eviction
	if j.maxAge > 0 {
		cutoff := entry.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.entries) && j.entries[idx].RecordedAt.Before(cutoff) {
			evicted = append(evicted, Eviction{Frame: j.entries[idx].Frame, Reason: "expired"})
			idx++
		}
		j.dropLocked(idx)
	}
	if overflow := len(j.entries) - j.maxFrames; overflow > 0 {
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, Eviction{Frame: j.entries[i].Frame, Reason: "count"})
		}
		j.dropLocked(overflow)
	}

	size := len(j.entries)
	result := RecordResult{Size: size, Evicted: evicted}
	if size > 0 {
		result.Oldest = j.entries[0].Frame
		result.Newest = j.entries[size-1].Frame
	}
	return result
}

func (j *Journal) dropLocked(n int) {
	if n <= 0 {
		return
	}
	copy(j.entries, j.entries[n:])
	for i := len(j.entries) - n; i < len(j.entries); i++ {
		j.entries[i] = Entry{}
	}
	j.entries = j.entries[:len(j.entries)-n]
}

// Entries returns a copy of the window in frame order.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// ByFrame returns the entry recorded for frame.
func (j *Journal) ByFrame(frame uint32) (Entry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, entry := range j.entries {
		if entry.Frame == frame {
			return entry, true
		}
	}
	return Entry{}, false
}

// Window reports the current retention window.
func (j *Journal) Window() (size int, oldest, newest uint32) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.entries)
	if size == 0 {
		return size, 0, 0
	}
	return size, j.entries[0].Frame, j.entries[size-1].Frame
}

// Reset empties the journal.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = j.entries[:0]
	j.pending = nil
}
