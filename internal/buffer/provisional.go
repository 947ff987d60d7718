package buffer

import (
	"sync"

	"webtap/pkg/model"
)

// Provisional holds events captured before full instrumentation attaches.
// It is a small capped holding area: once the importer has drained it for the
// last time it is discarded and further adds are dropped.
type Provisional struct {
	mu        sync.Mutex
	cap       int
	events    []model.DebugEvent
	discarded bool
}

const defaultProvisionalCap = 50

// NewProvisional creates the early-capture holding buffer.
func NewProvisional(cap int) *Provisional {
	if cap <= 0 {
		cap = defaultProvisionalCap
	}
	return &Provisional{cap: cap}
}

// Add buffers ev unless the holding area is full or already discarded.
func (p *Provisional) Add(ev model.DebugEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discarded || len(p.events) >= p.cap {
		return false
	}
	p.events = append(p.events, ev)
	return true
}

// Drain removes and returns everything currently held, oldest first.
func (p *Provisional) Drain() []model.DebugEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

// Discard drains one final time and marks the holding area dead.
func (p *Provisional) Discard() []model.DebugEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	p.discarded = true
	return out
}

// Len returns the held event count.
func (p *Provisional) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
