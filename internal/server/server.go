// Package server exposes the aggregator: a websocket endpoint for bridge
// producers and the local HTTP query surface used by downstream tools.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"webtap/internal/clean"
	"webtap/internal/logger"
	"webtap/internal/store"
	"webtap/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const maxIngestBody = 1 << 20

// Server serves queries over the fixed local port.
type Server struct {
	store    *store.Store
	log      logger.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	producers map[*producerConn]bool
}

type producerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *producerConn) send(env model.Envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(env)
}

// New wires a Server around the store.
func New(st *store.Store, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{
		store: st,
		log:   l,
		// Producers connect from local processes, not pages; origin checks
		// do not apply on a loopback-only listener.
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		producers: make(map[*producerConn]bool),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data", s.handleData)
	mux.HandleFunc("/errors", s.handleErrors)
	mux.HandleFunc("/network", s.handleNetwork)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/bridge", s.handleBridge)
	return mux
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Data())
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": s.store.Errors()})
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"network": s.store.Network()})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.store.Summary())
}

// handleClear resets the store and tells connected producers to reset their
// local buffers too, best-effort.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	s.store.Clear()
	s.broadcast(model.Envelope{Type: model.TypeClear})
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleIngest accepts one externally-produced error event for non-browser
// producers. Malformed payloads get an explicit error response so callers
// can tell "no data" from "bad request".
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !gjson.GetBytes(body, "rawMessage").Exists() {
		writeError(w, http.StatusBadRequest, "rawMessage is required")
		return
	}
	var ev model.DebugEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event: "+err.Error())
		return
	}
	if ev.Kind == "" {
		ev.Kind = model.KindConsoleError
	}
	if !ev.Kind.Valid() || ev.Kind.IsNetwork() {
		writeError(w, http.StatusBadRequest, "kind must be an error kind")
		return
	}
	stored := s.ingestError(ev)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stored": stored})
}

// ingestError enriches an inbound error event the same way the browser path
// does, then appends it.
func (s *Server) ingestError(ev model.DebugEvent) bool {
	if ev.Timestamp == 0 {
		ev.Timestamp = nowMillis()
	}
	if ev.CleanedMessage == "" {
		ev.CleanedMessage = clean.Message(ev.RawMessage)
	}
	if ev.Topic == "" {
		ev.Topic = clean.Classify(ev.RawMessage)
	}
	ev.Stack = clean.Stack(ev.Stack)
	return s.store.AddError(ev)
}

// handleBridge upgrades a producer connection and consumes its event
// envelopes until it drops. Unknown envelope types are ignored.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("bridge upgrade failed", "error", err)
		return
	}
	p := &producerConn{conn: conn}
	s.mu.Lock()
	s.producers[p] = true
	s.mu.Unlock()
	s.log.Info("bridge producer connected", "remote", conn.RemoteAddr().String())

	defer func() {
		s.mu.Lock()
		delete(s.producers, p)
		s.mu.Unlock()
		conn.Close()
		s.log.Info("bridge producer disconnected", "remote", conn.RemoteAddr().String())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.consume(data)
	}
}

// consume routes one producer envelope into the store.
func (s *Server) consume(data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Debug("malformed producer message ignored", "error", err)
		return
	}
	var ev model.DebugEvent
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.log.Debug("malformed event payload ignored", "type", env.Type, "error", err)
			return
		}
	}
	switch env.Type {
	case model.TypeConsoleError:
		s.ingestError(ev)
	case model.TypeNetworkRequest, model.TypeNetworkResponse, model.TypeNetworkFailure:
		if ev.Timestamp == 0 {
			ev.Timestamp = nowMillis()
		}
		s.store.AddNetwork(ev)
	default:
		s.log.Debug("unknown producer envelope ignored", "type", env.Type)
	}
}

// broadcast sends a command envelope to every connected producer.
func (s *Server) broadcast(env model.Envelope) {
	s.mu.Lock()
	producers := make([]*producerConn, 0, len(s.producers))
	for p := range s.producers {
		producers = append(producers, p)
	}
	s.mu.Unlock()
	for _, p := range producers {
		if err := p.send(env); err != nil {
			s.log.Debug("broadcast dropped", "type", env.Type, "error", err)
		}
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
