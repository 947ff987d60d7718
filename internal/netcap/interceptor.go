// Package netcap observes the network lifecycle of one attached target
// through the DevTools Network domain and assembles a correlated, filtered
// DebugEvent stream. Request, response and failure events stay independent in
// the buffer; they are matched by correlation id at query time.
package netcap

import (
	"context"
	"sync"
	"time"

	adapter "webtap/internal/adapter/cdp"
	"webtap/internal/buffer"
	"webtap/internal/logger"
	"webtap/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/network"
)

// bodyFetchTimeout bounds the best-effort response body fetch.
const bodyFetchTimeout = 3 * time.Second

const truncationMarker = "... [truncated]"

// Config wires an Interceptor to one attached target.
type Config struct {
	Target    model.TargetID
	Client    *cdp.Client
	Origin    string
	Buffer    *buffer.Buffer
	Filter    *Filter
	Forward   func(model.DebugEvent)
	OnDetach  func(error)
	Logger    logger.Logger
	BodyLimit int
}

// Interceptor is a two-state machine per target: detached or attached.
// Attach is idempotent; detach is best-effort.
type Interceptor struct {
	target    model.TargetID
	client    *cdp.Client
	parent    context.Context
	buf       *buffer.Buffer
	filter    *Filter
	forward   func(model.DebugEvent)
	onDetach  func(error)
	log       logger.Logger
	bodyLimit int
	origin    string

	mu       sync.Mutex
	attached bool
	cancel   context.CancelFunc

	detachOnce sync.Once

	// urls remembers request id -> URL so failures can name what failed.
	urlMu sync.Mutex
	urls  map[string]string
}

// New prepares an interceptor in the detached state.
func New(ctx context.Context, cfg Config) *Interceptor {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	limit := cfg.BodyLimit
	if limit <= 0 {
		limit = 5000
	}
	return &Interceptor{
		target:    cfg.Target,
		client:    cfg.Client,
		parent:    ctx,
		buf:       cfg.Buffer,
		filter:    cfg.Filter,
		forward:   cfg.Forward,
		onDetach:  cfg.OnDetach,
		log:       l.With("target", string(cfg.Target)),
		bodyLimit: limit,
		origin:    cfg.Origin,
		urls:      make(map[string]string),
	}
}

// Attach enables the Network domain and starts consuming lifecycle events.
// Attaching twice is a no-op.
func (i *Interceptor) Attach() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.attached {
		return nil
	}
	ctx, cancel := context.WithCancel(i.parent)

	if err := i.client.Network.Enable(ctx, nil); err != nil {
		cancel()
		return err
	}
	requests, err := i.client.Network.RequestWillBeSent(ctx)
	if err != nil {
		cancel()
		return err
	}
	responses, err := i.client.Network.ResponseReceived(ctx)
	if err != nil {
		requests.Close()
		cancel()
		return err
	}
	failures, err := i.client.Network.LoadingFailed(ctx)
	if err != nil {
		requests.Close()
		responses.Close()
		cancel()
		return err
	}

	i.cancel = cancel
	i.attached = true
	go i.consumeRequests(ctx, requests)
	go i.consumeResponses(ctx, responses)
	go i.consumeFailures(ctx, failures)
	i.log.Info("network capture attached")
	return nil
}

// Detach stops capture. Best-effort: a target that already disappeared is
// treated as detached.
func (i *Interceptor) Detach() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.attached {
		return
	}
	i.attached = false
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = i.client.Network.Disable(ctx)
	cancel()
	i.cancel()
	i.log.Info("network capture detached")
}

// Attached reports the current state.
func (i *Interceptor) Attached() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.attached
}

// Records returns the buffered network-class events.
func (i *Interceptor) Records() []model.DebugEvent {
	return i.buf.Network()
}

func (i *Interceptor) consumeRequests(ctx context.Context, c network.RequestWillBeSentClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			i.streamClosed(ctx, err)
			return
		}
		i.rememberURL(string(reply.RequestID), reply.Request.URL)
		if i.filter.Excluded(reply.Request.URL, string(reply.Type)) {
			continue
		}
		i.retain(adapter.FromRequest(reply, i.origin))
	}
}

func (i *Interceptor) consumeResponses(ctx context.Context, c network.ResponseReceivedClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			i.streamClosed(ctx, err)
			return
		}
		if i.filter.Excluded(reply.Response.URL, string(reply.Type)) {
			continue
		}
		ev := adapter.FromResponse(reply, i.origin)
		// Each response is handled off the stream loop so the body fetch
		// cannot stall new event intake.
		go i.completeResponse(ctx, reply.RequestID, ev)
	}
}

func (i *Interceptor) consumeFailures(ctx context.Context, c network.LoadingFailedClient) {
	defer c.Close()
	for {
		reply, err := c.Recv()
		if err != nil {
			i.streamClosed(ctx, err)
			return
		}
		url := i.lookupURL(string(reply.RequestID))
		if i.filter.Excluded(url, string(reply.Type)) {
			continue
		}
		i.retain(adapter.FromLoadingFailed(reply, url, i.origin))
	}
}

// completeResponse fetches the body best-effort, truncates it, and retains
// the finished response event. Absence of a body is not an error.
func (i *Interceptor) completeResponse(ctx context.Context, id network.RequestID, ev model.DebugEvent) {
	fctx, cancel := context.WithTimeout(ctx, bodyFetchTimeout)
	defer cancel()
	reply, err := i.client.Network.GetResponseBody(fctx, &network.GetResponseBodyArgs{RequestID: id})
	if err == nil && !reply.Base64Encoded {
		body := reply.Body
		if len(body) > i.bodyLimit {
			body = body[:i.bodyLimit] + truncationMarker
			ev.BodyTruncated = true
		}
		ev.Body = body
	}
	i.retain(ev)
}

// retain appends to the local buffer and pushes to the bridge immediately.
// A forwarding failure drops the forward, never the buffered copy.
func (i *Interceptor) retain(ev model.DebugEvent) {
	if !i.buf.Append(ev) {
		return
	}
	if i.forward != nil {
		i.forward(ev)
	}
}

func (i *Interceptor) rememberURL(id, url string) {
	i.urlMu.Lock()
	defer i.urlMu.Unlock()
	if len(i.urls) > 4096 { // navigation churn guard
		i.urls = make(map[string]string)
	}
	i.urls[id] = url
}

func (i *Interceptor) lookupURL(id string) string {
	i.urlMu.Lock()
	defer i.urlMu.Unlock()
	return i.urls[id]
}

func (i *Interceptor) streamClosed(ctx context.Context, err error) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	i.detachOnce.Do(func() {
		i.log.Warn("network stream closed", "error", err)
		i.mu.Lock()
		i.attached = false
		i.mu.Unlock()
		if i.onDetach != nil {
			i.onDetach(err)
		}
	})
}
