// Package capture implements the page-level instrumentation agent. It
// subscribes to the earliest error surfaces a DevTools session offers
// (console API calls and thrown exceptions), buffers what arrives before the
// full pipeline is ready, and emits cleaned, classified, deduplicated
// DebugEvents afterwards. Subscribing never alters the page's own console
// behavior; interception augments, it does not replace.
package capture

import (
	"context"
	"sync"
	"time"

	adapter "webtap/internal/adapter/cdp"
	"webtap/internal/buffer"
	"webtap/internal/clean"
	"webtap/internal/logger"
	"webtap/pkg/model"

	"github.com/mafredri/cdp"
	cdplog "github.com/mafredri/cdp/protocol/log"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
)

// Config wires an Agent to one attached target.
type Config struct {
	Target  model.TargetID
	Client  *cdp.Client
	Origin  string
	Buffer  *buffer.Buffer
	Forward func(model.DebugEvent)
	// OnDetach fires once when an event stream dies out-of-band.
	OnDetach func(error)
	Logger   logger.Logger
	// ImportDelays are the two points after Start at which the provisional
	// buffer is imported. Defaults tolerate components that load late.
	ImportDelays []time.Duration

	ProvisionalCap int
}

var defaultImportDelays = []time.Duration{500 * time.Millisecond, 3 * time.Second}

// Agent captures console and exception events for a single target.
type Agent struct {
	target  model.TargetID
	client  *cdp.Client
	ctx     context.Context
	cancel  context.CancelFunc
	buf     *buffer.Buffer
	prov    *buffer.Provisional
	forward func(model.DebugEvent)
	log     logger.Logger
	delays  []time.Duration

	mu     sync.Mutex
	ready  bool
	origin string

	detachOnce sync.Once
	onDetach   func(error)
}

// New attaches the early-capture surfaces immediately. Events received before
// Start land in the provisional buffer untouched; enrichment begins at Start.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	actx, cancel := context.WithCancel(ctx)
	a := &Agent{
		target:   cfg.Target,
		client:   cfg.Client,
		ctx:      actx,
		cancel:   cancel,
		buf:      cfg.Buffer,
		prov:     buffer.NewProvisional(cfg.ProvisionalCap),
		forward:  cfg.Forward,
		log:      l.With("target", string(cfg.Target)),
		delays:   cfg.ImportDelays,
		origin:   cfg.Origin,
		onDetach: cfg.OnDetach,
	}
	if len(a.delays) == 0 {
		a.delays = defaultImportDelays
	}

	if err := a.client.Runtime.Enable(actx); err != nil {
		cancel()
		return nil, err
	}
	if err := a.client.Page.Enable(actx); err != nil {
		cancel()
		return nil, err
	}
	if err := a.client.Log.Enable(actx); err != nil {
		cancel()
		return nil, err
	}

	console, err := a.client.Runtime.ConsoleAPICalled(actx)
	if err != nil {
		cancel()
		return nil, err
	}
	exceptions, err := a.client.Runtime.ExceptionThrown(actx)
	if err != nil {
		console.Close()
		cancel()
		return nil, err
	}
	navigated, err := a.client.Page.FrameNavigated(actx)
	if err != nil {
		console.Close()
		exceptions.Close()
		cancel()
		return nil, err
	}
	entries, err := a.client.Log.EntryAdded(actx)
	if err != nil {
		console.Close()
		exceptions.Close()
		navigated.Close()
		cancel()
		return nil, err
	}

	go a.consumeConsole(console)
	go a.consumeExceptions(exceptions)
	go a.consumeNavigation(navigated)
	go a.consumeLog(entries)
	return a, nil
}

// Start switches the agent from early capture to full instrumentation and
// schedules the provisional imports.
func (a *Agent) Start() {
	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()

	last := len(a.delays) - 1
	for i, d := range a.delays {
		final := i == last
		time.AfterFunc(d, func() { a.importProvisional(final) })
	}
	a.log.Debug("capture agent started")
}

// Stop tears the agent down.
func (a *Agent) Stop() {
	a.cancel()
}

// Errors returns the buffered console-class events.
func (a *Agent) Errors() []model.DebugEvent {
	return a.buf.Console()
}

// Clear drops the buffered events for this target.
func (a *Agent) Clear() {
	a.buf.Clear()
}

func (a *Agent) isReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

func (a *Agent) originURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.origin
}

func (a *Agent) consumeConsole(c runtime.ConsoleAPICalledClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			a.streamClosed(err)
			return
		}
		ev, ok := adapter.FromConsoleAPI(reply, a.originURL())
		if !ok {
			continue
		}
		a.ingest(ev)
	}
}

func (a *Agent) consumeExceptions(c runtime.ExceptionThrownClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			a.streamClosed(err)
			return
		}
		a.ingest(adapter.FromException(reply, a.originURL()))
	}
}

func (a *Agent) consumeLog(c cdplog.EntryAddedClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			a.streamClosed(err)
			return
		}
		ev, ok := adapter.FromLogEntry(reply, a.originURL())
		if !ok {
			continue
		}
		a.ingest(ev)
	}
}

// consumeNavigation clears the buffer and updates the origin whenever the
// main frame navigates. Subframe navigations are ignored.
func (a *Agent) consumeNavigation(c page.FrameNavigatedClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			a.streamClosed(err)
			return
		}
		if reply.Frame.ParentID != nil {
			continue
		}
		a.mu.Lock()
		a.origin = reply.Frame.URL
		a.mu.Unlock()
		a.buf.Clear()
		a.log.Debug("page navigated, buffer cleared", "origin", reply.Frame.URL)
	}
}

// ingest routes one captured event: provisional while the agent is not ready,
// the enriched path afterwards. A panic anywhere in the capture path is
// swallowed; instrumentation must never take the page down with it.
func (a *Agent) ingest(ev model.DebugEvent) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Warn("capture path panic swallowed", "panic", r)
		}
	}()
	if !a.isReady() {
		if !a.prov.Add(ev) {
			a.log.Debug("provisional buffer full, event dropped")
		}
		return
	}
	a.process(ev)
}

// process enriches and retains one event, then forwards it best-effort.
func (a *Agent) process(ev model.DebugEvent) {
	ev.CleanedMessage = clean.Message(ev.RawMessage)
	ev.Topic = clean.Classify(ev.RawMessage)
	ev.Stack = clean.Stack(ev.Stack)
	ev.Kind = reclassify(ev.Kind, ev.Topic)

	if !a.buf.Append(ev) {
		return // duplicate inside the dedup window
	}
	if a.forward != nil {
		a.forward(ev)
	}
}

// importProvisional merges early-captured events into the live buffer,
// deduplicating against whatever full instrumentation saw in the meantime.
// The final import discards the provisional buffer for good.
func (a *Agent) importProvisional(final bool) {
	var held []model.DebugEvent
	if final {
		held = a.prov.Discard()
	} else {
		held = a.prov.Drain()
	}
	for _, ev := range held {
		a.process(ev)
	}
	if len(held) > 0 {
		a.log.Debug("imported provisional events", "count", len(held), "final", final)
	}
}

// reclassify promotes a console error to a framework kind when the topic says
// so. The topic itself stays advisory either way.
func reclassify(kind model.EventKind, topic string) model.EventKind {
	if kind != model.KindConsoleError && kind != model.KindConsoleWarn {
		return kind
	}
	switch topic {
	case "hydration-mismatch":
		return model.KindHydrationWarning
	case "render-error":
		return model.KindRenderError
	}
	return kind
}

// streamClosed reports the first stream loss; a target that disappears
// out-of-band is treated as implicitly detached.
func (a *Agent) streamClosed(err error) {
	select {
	case <-a.ctx.Done():
		return
	default:
	}
	a.detachOnce.Do(func() {
		a.log.Warn("capture stream closed", "error", err)
		if a.onDetach != nil {
			a.onDetach(err)
		}
	})
}
