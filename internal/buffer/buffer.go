// Package buffer implements the bounded, insertion-ordered DebugEvent buffer.
// Console-kind and network-kind events have independent caps; eviction is
// FIFO within a class. Console events are deduplicated by raw-message prefix
// inside a short time window to bound re-render error storms.
package buffer

import (
	"sync"
	"time"

	"webtap/pkg/model"
)

// Options carries the tunable caps. Zero values fall back to the defaults
// below; none of these encode a deliberate tuning decision.
type Options struct {
	ConsoleCap  int
	NetworkCap  int
	DedupWindow time.Duration
	DedupPrefix int
}

const (
	defaultConsoleCap  = 100
	defaultNetworkCap  = 200
	defaultDedupWindow = time.Second
	defaultDedupPrefix = 100
)

func (o Options) withDefaults() Options {
	if o.ConsoleCap <= 0 {
		o.ConsoleCap = defaultConsoleCap
	}
	if o.NetworkCap <= 0 {
		o.NetworkCap = defaultNetworkCap
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = defaultDedupWindow
	}
	if o.DedupPrefix <= 0 {
		o.DedupPrefix = defaultDedupPrefix
	}
	return o
}

// Buffer holds both event classes in one insertion-ordered sequence.
type Buffer struct {
	mu     sync.Mutex
	opts   Options
	events []model.DebugEvent
}

// New creates an empty buffer.
func New(opts Options) *Buffer {
	return &Buffer{opts: opts.withDefaults()}
}

// Append inserts ev, evicting the oldest event of the same class when the
// class cap is reached. It returns false when ev was discarded as a
// duplicate. Network events never deduplicate; a request and its response
// legitimately share message text and timing.
func (b *Buffer) Append(ev model.DebugEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !ev.Kind.IsNetwork() && b.isDuplicate(ev) {
		return false
	}
	b.events = append(b.events, ev)
	b.evict(ev.Kind.IsNetwork())
	return true
}

// isDuplicate reports whether an already-buffered console event shares the
// first DedupPrefix bytes of raw message within the dedup window. Caller
// holds the lock.
func (b *Buffer) isDuplicate(ev model.DebugEvent) bool {
	cutoff := ev.Timestamp - b.opts.DedupWindow.Milliseconds()
	for i := len(b.events) - 1; i >= 0; i-- {
		prev := &b.events[i]
		if prev.Timestamp < cutoff {
			break
		}
		if prev.Kind.IsNetwork() {
			continue
		}
		if prefix(prev.RawMessage, b.opts.DedupPrefix) == prefix(ev.RawMessage, b.opts.DedupPrefix) {
			return true
		}
	}
	return false
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// evict drops the oldest events of a class until it is back under its cap.
// Caller holds the lock.
func (b *Buffer) evict(network bool) {
	limit := b.opts.ConsoleCap
	if network {
		limit = b.opts.NetworkCap
	}
	count := 0
	for i := range b.events {
		if b.events[i].Kind.IsNetwork() == network {
			count++
		}
	}
	if count <= limit {
		return
	}
	excess := count - limit
	kept := b.events[:0]
	for i := range b.events {
		if excess > 0 && b.events[i].Kind.IsNetwork() == network {
			excess--
			continue
		}
		kept = append(kept, b.events[i])
	}
	b.events = kept
}

// Snapshot returns a copy of all events in insertion order.
func (b *Buffer) Snapshot() []model.DebugEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.DebugEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Console returns the console-class events in insertion order.
func (b *Buffer) Console() []model.DebugEvent {
	return b.filtered(false)
}

// Network returns the network-class events in insertion order.
func (b *Buffer) Network() []model.DebugEvent {
	return b.filtered(true)
}

func (b *Buffer) filtered(network bool) []model.DebugEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.DebugEvent
	for i := range b.events {
		if b.events[i].Kind.IsNetwork() == network {
			out = append(out, b.events[i])
		}
	}
	return out
}

// Restore replaces the buffer contents wholesale, re-applying class caps.
// Used when reloading persisted state.
func (b *Buffer) Restore(events []model.DebugEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events[:0:0], events...)
	b.evict(false)
	b.evict(true)
}

// Clear drops everything.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Len returns the total buffered event count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
