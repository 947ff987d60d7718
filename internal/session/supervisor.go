package session

import (
	"context"
	"time"

	"webtap/internal/bridge"
	"webtap/internal/buffer"
	"webtap/internal/capture"
	"webtap/internal/config"
	"webtap/internal/logger"
	"webtap/internal/netcap"
	"webtap/pkg/model"

	"github.com/google/uuid"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
)

const targetPollInterval = 5 * time.Second

// Supervisor discovers page targets on the debugging endpoint, attaches a
// session to each, and serves the bridge command surface.
type Supervisor struct {
	cfg      *config.Config
	sender   *bridge.Sender
	sessions *Manager
	filter   *netcap.Filter
	dt       *devtool.DevTools
	log      logger.Logger

	// autoCapture starts network capture at attach time. The start_capture
	// command does the same on demand for targets left detached.
	autoCapture bool
}

// NewSupervisor wires a supervisor; Run drives it.
func NewSupervisor(cfg *config.Config, sender *bridge.Sender, autoCapture bool, l logger.Logger) *Supervisor {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Supervisor{
		cfg:         cfg,
		sender:      sender,
		sessions:    NewManager(l),
		filter:      netcap.NewFilter(cfg.Network.ExcludeResourceTypes, cfg.Network.ExcludeURLPatterns, l),
		dt:          devtool.New(cfg.DevToolsURL),
		log:         l,
		autoCapture: autoCapture,
	}
	s.registerCommands()
	return s
}

// Run connects the bridge and keeps the attached-target set in sync with the
// browser until ctx ends.
func (s *Supervisor) Run(ctx context.Context) error {
	s.sender.Connect()
	defer s.teardown()

	ticker := time.NewTicker(targetPollInterval)
	defer ticker.Stop()
	for {
		s.sync(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sync attaches new page targets and prunes vanished ones.
func (s *Supervisor) sync(ctx context.Context) {
	targets, err := s.dt.List(ctx)
	if err != nil {
		s.log.Warn("target discovery failed", "error", err)
		return
	}
	alive := make(map[model.TargetID]bool, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		id := model.TargetID(t.ID)
		alive[id] = true
		if s.sessions.Has(id) {
			continue
		}
		if err := s.attach(ctx, t); err != nil {
			s.log.Warn("attach failed", "target", t.ID, "url", t.URL, "error", err)
		}
	}
	for _, sess := range s.sessions.List() {
		if !alive[sess.Target] {
			s.sessions.Delete(sess.Target)
		}
	}
}

// attach builds the full per-target pipeline: connection, shared buffer,
// capture agent, network interceptor.
func (s *Supervisor) attach(ctx context.Context, t *devtool.Target) error {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return err
	}
	client := cdp.NewClient(conn)
	id := model.TargetID(t.ID)

	buf := buffer.New(buffer.Options{
		ConsoleCap:  s.cfg.Buffers.ConsoleCap,
		NetworkCap:  s.cfg.Buffers.NetworkCap,
		DedupWindow: time.Duration(s.cfg.Buffers.DedupWindowMS) * time.Millisecond,
		DedupPrefix: s.cfg.Buffers.DedupPrefix,
	})
	onDetach := func(error) { s.sessions.Delete(id) }

	agent, err := capture.New(ctx, capture.Config{
		Target: id,
		Client: client,
		Origin: t.URL,
		Buffer: buf,
		Forward: func(ev model.DebugEvent) {
			_ = s.sender.SendEvent(id, ev)
		},
		OnDetach:       onDetach,
		Logger:         s.log,
		ProvisionalCap: s.cfg.Buffers.ProvisionalCap,
	})
	if err != nil {
		conn.Close()
		return err
	}

	net := netcap.New(ctx, netcap.Config{
		Target: id,
		Client: client,
		Origin: t.URL,
		Buffer: buf,
		Filter: s.filter,
		Forward: func(ev model.DebugEvent) {
			_ = s.sender.SendEvent(id, ev)
		},
		OnDetach:  onDetach,
		Logger:    s.log,
		BodyLimit: s.cfg.Network.BodyLimit,
	})

	sess := &Session{
		ID:     model.SessionID(uuid.NewString()),
		Target: id,
		URL:    t.URL,
		Conn:   conn,
		Buffer: buf,
		Agent:  agent,
		Net:    net,
	}
	s.sessions.Put(sess)

	if s.autoCapture {
		if err := net.Attach(); err != nil {
			s.log.Warn("network capture attach failed", "target", t.ID, "error", err)
		}
	}
	agent.Start()
	return nil
}

func (s *Supervisor) teardown() {
	for _, sess := range s.sessions.List() {
		s.sessions.Delete(sess.Target)
	}
}

// registerCommands installs the bridge command surface.
func (s *Supervisor) registerCommands() {
	s.sender.Handle(model.TypeGetErrors, func(env model.Envelope) (any, bool) {
		return map[string]any{"errors": s.collect(env.TabID, true, false)}, true
	})
	s.sender.Handle(model.TypeGetNetwork, func(env model.Envelope) (any, bool) {
		return map[string]any{"network": s.collect(env.TabID, false, true)}, true
	})
	s.sender.Handle(model.TypeGetAll, func(env model.Envelope) (any, bool) {
		return map[string]any{
			"errors":  s.collect(env.TabID, true, false),
			"network": s.collect(env.TabID, false, true),
		}, true
	})
	s.sender.Handle(model.TypeClear, func(env model.Envelope) (any, bool) {
		for _, sess := range s.matching(env.TabID) {
			sess.Buffer.Clear()
		}
		return map[string]string{"status": "cleared"}, env.RequestID != ""
	})
	s.sender.Handle(model.TypeStartCapture, func(env model.Envelope) (any, bool) {
		started := 0
		for _, sess := range s.matching(env.TabID) {
			if err := sess.Net.Attach(); err != nil {
				s.log.Warn("start_capture failed", "target", string(sess.Target), "error", err)
				continue
			}
			started++
		}
		return map[string]int{"started": started}, env.RequestID != ""
	})
}

func (s *Supervisor) matching(tabID string) []*Session {
	if tabID == "" {
		return s.sessions.List()
	}
	if sess, ok := s.sessions.Get(model.TargetID(tabID)); ok {
		return []*Session{sess}
	}
	return nil
}

func (s *Supervisor) collect(tabID string, console, network bool) []model.DebugEvent {
	out := []model.DebugEvent{}
	for _, sess := range s.matching(tabID) {
		if console {
			out = append(out, sess.Buffer.Console()...)
		}
		if network {
			out = append(out, sess.Buffer.Network()...)
		}
	}
	return out
}
