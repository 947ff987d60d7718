// Package session tracks one capture session per attached browser target and
// supervises their lifecycle.
package session

import (
	"sync"

	"webtap/internal/buffer"
	"webtap/internal/capture"
	"webtap/internal/logger"
	"webtap/internal/netcap"
	"webtap/pkg/model"

	"github.com/mafredri/cdp/rpcc"
)

// Session owns everything attached to one target: the protocol connection,
// the capture agent, the network interceptor, and their shared buffer.
type Session struct {
	ID     model.SessionID
	Target model.TargetID
	URL    string

	Conn   *rpcc.Conn
	Buffer *buffer.Buffer
	Agent  *capture.Agent
	Net    *netcap.Interceptor
}

// Close tears the session down best-effort.
func (s *Session) Close() {
	if s.Net != nil {
		s.Net.Detach()
	}
	if s.Agent != nil {
		s.Agent.Stop()
	}
	if s.Conn != nil {
		_ = s.Conn.Close()
	}
}

// Manager is the registry of live sessions, keyed by target.
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.TargetID]*Session
	log      logger.Logger
}

// NewManager creates an empty registry.
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.TargetID]*Session),
		log:      l,
	}
}

// Put registers a session.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Target] = s
	m.log.Info("session registered", "sessionID", string(s.ID), "target", string(s.Target))
}

// Get returns the session for a target.
func (m *Manager) Get(id model.TargetID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes and closes the session for a target.
func (m *Manager) Delete(id model.TargetID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
		m.log.Info("session destroyed", "target", string(id))
	}
}

// List returns all live sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Has reports whether a target is already attached.
func (m *Manager) Has(id model.TargetID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}
