// Package bridge carries typed event envelopes from the capture side to the
// aggregator and command envelopes back. Delivery is at-most-once: nothing is
// queued while disconnected, because the local buffers stay the source of
// truth and any consumer can re-fetch state after a reconnect.
package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"webtap/internal/logger"
	"webtap/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// State is the connection state owned exclusively by the sending side.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned by Send while the bridge is down. Callers on
// the capture path ignore it; transport loss is a visibility gap, not data
// loss.
var ErrNotConnected = errors.New("bridge: not connected")

// Conn is the minimal websocket surface the sender needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens one connection attempt.
type DialFunc func(url string) (Conn, error)

func gorillaDial(url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	return c, err
}

// Handler answers one inbound command. The returned payload is wrapped in a
// "<type>_result" envelope when respond is true.
type Handler func(env model.Envelope) (payload any, respond bool)

// Sender is the producer end of the bridge.
type Sender struct {
	url   string
	dial  DialFunc
	retry time.Duration
	log   logger.Logger

	mu           sync.Mutex
	conn         Conn
	state        State
	retryPending bool
	closed       bool
	attempts     int

	handlerMu sync.RWMutex
	handlers  map[string]Handler

	writeMu sync.Mutex
}

// Options tunes the sender. Dial is replaceable for tests.
type Options struct {
	RetryInterval time.Duration
	Dial          DialFunc
	Logger        logger.Logger
}

// NewSender creates a disconnected sender; call Connect to begin.
func NewSender(url string, opts Options) *Sender {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Sender{
		url:      url,
		dial:     opts.Dial,
		retry:    opts.RetryInterval,
		log:      opts.Logger,
		handlers: make(map[string]Handler),
	}
}

// Handle registers the command handler for one envelope type. Inbound types
// with no handler are ignored, which keeps the wire forward-compatible.
func (s *Sender) Handle(envType string, h Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers[envType] = h
}

// Connect starts an asynchronous connection attempt.
func (s *Sender) Connect() {
	go s.attempt()
}

func (s *Sender) attempt() {
	s.mu.Lock()
	if s.closed || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.attempts++
	s.mu.Unlock()

	c, err := s.dial(s.url)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if c != nil {
			c.Close()
		}
		return
	}
	if err != nil {
		s.state = StateDisconnected
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		s.log.Debug("bridge dial failed", "url", s.url, "error", err)
		return
	}
	s.conn = c
	s.state = StateConnected
	s.mu.Unlock()
	s.log.Info("bridge connected", "url", s.url)
	go s.readLoop(c)
}

// scheduleReconnectLocked arms the single reconnect timer. Scheduling is
// idempotent: at most one attempt is ever pending.
func (s *Sender) scheduleReconnectLocked() {
	if s.retryPending || s.closed {
		return
	}
	s.retryPending = true
	time.AfterFunc(s.retry, func() {
		s.mu.Lock()
		s.retryPending = false
		s.mu.Unlock()
		s.attempt()
	})
}

func (s *Sender) readLoop(c Conn) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.dropped(c, err)
			return
		}
		s.dispatch(data)
	}
}

// dispatch routes one inbound command envelope. Unknown types are ignored
// without error.
func (s *Sender) dispatch(data []byte) {
	envType := gjson.GetBytes(data, "type").String()
	if envType == "" {
		return
	}
	s.handlerMu.RLock()
	h := s.handlers[envType]
	s.handlerMu.RUnlock()
	if h == nil {
		s.log.Debug("unknown bridge message type ignored", "type", envType)
		return
	}
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Debug("malformed bridge message ignored", "error", err)
		return
	}
	payload, respond := h(env)
	if !respond {
		return
	}
	s.respond(env, payload)
}

// respond wraps a handler result and echoes the caller's request id so the
// response can be matched.
func (s *Sender) respond(cmd model.Envelope, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("bridge response encode failed", "type", cmd.Type, "error", err)
		return
	}
	resp, err := json.Marshal(model.Envelope{
		Type:  cmd.Type + "_result",
		Data:  raw,
		TabID: cmd.TabID,
	})
	if err != nil {
		return
	}
	if cmd.RequestID != "" {
		if patched, perr := sjson.SetBytes(resp, "requestId", cmd.RequestID); perr == nil {
			resp = patched
		}
	}
	if err := s.write(resp); err != nil {
		s.log.Debug("bridge response dropped", "type", cmd.Type, "error", err)
	}
}

// Send delivers one envelope, or returns ErrNotConnected. No queueing, no
// retry.
func (s *Sender) Send(env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.write(data)
}

// SendEvent wraps a DebugEvent in its wire envelope and sends it.
func (s *Sender) SendEvent(tab model.TargetID, ev model.DebugEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Send(model.Envelope{
		Type:  model.EnvelopeTypeFor(ev.Kind),
		Data:  raw,
		TabID: string(tab),
	})
}

func (s *Sender) write(data []byte) error {
	s.mu.Lock()
	c := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || c == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		s.dropped(c, err)
		return err
	}
	return nil
}

// dropped transitions connected -> disconnected exactly once per connection
// and arms the reconnect timer.
func (s *Sender) dropped(c Conn, err error) {
	c.Close()
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	s.scheduleReconnectLocked()
	s.mu.Unlock()
	s.log.Warn("bridge connection dropped", "error", err)
}

// State returns the current connection state.
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetryPending reports whether a reconnect attempt is armed.
func (s *Sender) RetryPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryPending
}

// Attempts returns how many connection attempts have been made.
func (s *Sender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Close shuts the sender down for good.
func (s *Sender) Close() {
	s.mu.Lock()
	s.closed = true
	c := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	if c != nil {
		c.Close()
	}
}
