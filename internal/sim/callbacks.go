package sim

// DefaultCallbackLifetime is how many frames a registration may wait for its
// echo before it is failed.
const DefaultCallbackLifetime uint32 = 30

const (
	callbackPendingMetricKey  = "sim_callbacks_pending"
	callbackExpiredMetricKey  = "sim_callbacks_expired_total"
	callbackResolvedMetricKey = "sim_callbacks_resolved_total"
)

type pendingEntry struct {
	fingerprint Fingerprint
	command     Command
	sendFrame   uint32
	callbacks   []Callback
}

// CallbackRegistry holds completion callbacks keyed by fingerprint until the
// server echoes the command, the entry ages out, or the registry is
// cancelled. Every registered callback is invoked exactly once.
//
// The registry is owned by the session loop and is not safe for concurrent
// use.
type CallbackRegistry struct {
	lifetime uint32
	entries  []*pendingEntry
	index    map[Fingerprint]*pendingEntry
	metrics  telemetryMetrics
}

// NewCallbackRegistry constructs a registry. A zero lifetime selects
// DefaultCallbackLifetime.
func NewCallbackRegistry(lifetime uint32, metrics telemetryMetrics) *CallbackRegistry {
	if lifetime == 0 {
		lifetime = DefaultCallbackLifetime
	}
	return &CallbackRegistry{
		lifetime: lifetime,
		index:    make(map[Fingerprint]*pendingEntry),
		metrics:  metrics,
	}
}

// Lifetime reports the configured expiry bound in frames.
func (r *CallbackRegistry) Lifetime() uint32 {
	return r.lifetime
}

// Len reports the number of pending fingerprints.
func (r *CallbackRegistry) Len() int {
	return len(r.entries)
}

// Pending reports whether fp has a live registration.
func (r *CallbackRegistry) Pending(fp Fingerprint) bool {
	_, ok := r.index[fp]
	return ok
}

// Register stores cb under fp. A second registration for a fingerprint that
// is still pending appends to the existing entry and keeps its send frame.
// A nil callback still creates the entry so the echo is tracked.
func (r *CallbackRegistry) Register(fp Fingerprint, cmd Command, sendFrame uint32, cb Callback) {
	if entry, ok := r.index[fp]; ok {
		if cb != nil {
			entry.callbacks = append(entry.callbacks, cb)
		}
		return
	}
	entry := &pendingEntry{fingerprint: fp, command: cmd, sendFrame: sendFrame}
	if cb != nil {
		entry.callbacks = append(entry.callbacks, cb)
	}
	r.entries = append(r.entries, entry)
	r.index[fp] = entry
	r.storePending()
}

// Resolve fires and removes the entry for fp. It reports whether an entry
// existed; an unknown fingerprint is a silent no-op.
func (r *CallbackRegistry) Resolve(fp Fingerprint, frame uint32, err error) bool {
	entry, ok := r.index[fp]
	if !ok {
		return false
	}
	r.remove(entry)
	if r.metrics != nil {
		r.metrics.Add(callbackResolvedMetricKey, 1)
	}
	fire(entry, Result{Command: entry.command, Frame: frame, Err: err})
	return true
}

// Sweep fails and removes every entry older than the lifetime at frame. It
// returns the number of expired entries.
func (r *CallbackRegistry) Sweep(frame uint32) int {
	var expired []*pendingEntry
	kept := r.entries[:0]
	for _, entry := range r.entries {
		if frame-entry.sendFrame > r.lifetime {
			expired = append(expired, entry)
			delete(r.index, entry.fingerprint)
			continue
		}
		kept = append(kept, entry)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	if len(expired) == 0 {
		return 0
	}
	r.storePending()
	if r.metrics != nil {
		r.metrics.Add(callbackExpiredMetricKey, uint64(len(expired)))
	}
	for _, entry := range expired {
		fire(entry, Result{Command: entry.command, Frame: frame, Err: ErrCallbackExpired})
	}
	return len(expired)
}

// Cancel fails every pending entry with err and empties the registry.
func (r *CallbackRegistry) Cancel(frame uint32, err error) int {
	entries := r.entries
	r.entries = nil
	r.index = make(map[Fingerprint]*pendingEntry)
	r.storePending()
	for _, entry := range entries {
		fire(entry, Result{Command: entry.command, Frame: frame, Err: err})
	}
	return len(entries)
}

func (r *CallbackRegistry) remove(target *pendingEntry) {
	delete(r.index, target.fingerprint)
	for i, entry := range r.entries {
		if entry == target {
			copy(r.entries[i:], r.entries[i+1:])
			r.entries[len(r.entries)-1] = nil
			r.entries = r.entries[:len(r.entries)-1]
			break
		}
	}
	r.storePending()
}

func (r *CallbackRegistry) storePending() {
	if r.metrics == nil {
		return
	}
	r.metrics.Store(callbackPendingMetricKey, uint64(len(r.entries)))
}

// fire runs after the entry has left the registry so a callback that
// registers or resolves re-entrantly cannot observe or fire it again.
func fire(entry *pendingEntry, result Result) {
	callbacks := entry.callbacks
	entry.callbacks = nil
	for _, cb := range callbacks {
		cb(result)
	}
}
