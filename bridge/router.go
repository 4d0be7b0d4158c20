package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/clippy/kit"
)

// Handler answers one message on a surface. ctx is the endpoint's context
// and ends when the surface detaches.
type Handler func(ctx context.Context, msg Message) (Response, error)

// Router connects surfaces. Safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	endpoints map[Surface]*Endpoint
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter returns a Router with no surfaces attached.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		endpoints: make(map[Surface]*Endpoint),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Endpoint is one attached surface and its handlers.
type Endpoint struct {
	surface Surface
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	handlers map[Action]Handler
}

// Surface returns the surface this endpoint serves.
func (e *Endpoint) Surface() Surface { return e.surface }

// Context ends when the endpoint is detached.
func (e *Endpoint) Context() context.Context { return e.ctx }

// Handle registers h for action, replacing any previous handler.
func (e *Endpoint) Handle(action Action, h Handler) {
	e.mu.Lock()
	e.handlers[action] = h
	e.mu.Unlock()
}

func (e *Endpoint) handler(action Action) Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handlers[action]
}

// Attach registers a fresh endpoint for s. An endpoint already attached
// for s is detached first, abandoning its pending requests.
func (r *Router) Attach(s Surface) *Endpoint {
	ctx, cancel := context.WithCancel(kit.WithSurface(context.Background(), string(s)))
	ep := &Endpoint{
		surface:  s,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[Action]Handler),
	}

	r.mu.Lock()
	old := r.endpoints[s]
	r.endpoints[s] = ep
	r.mu.Unlock()

	if old != nil {
		old.cancel()
	}
	r.logger.Debug("bridge: surface attached", "surface", s)
	return ep
}

// Detach removes the endpoint for s. Requests it is still handling resolve
// with ErrNoResponse.
func (r *Router) Detach(s Surface) {
	r.mu.Lock()
	ep := r.endpoints[s]
	delete(r.endpoints, s)
	r.mu.Unlock()

	if ep != nil {
		ep.cancel()
		r.logger.Debug("bridge: surface detached", "surface", s)
	}
}

// DetachEndpoint removes ep only if it is still the endpoint for its
// surface.
func (r *Router) DetachEndpoint(ep *Endpoint) {
	r.mu.Lock()
	if r.endpoints[ep.surface] == ep {
		delete(r.endpoints, ep.surface)
	}
	r.mu.Unlock()
	ep.cancel()
}

// Send delivers msg to its default destination.
func (r *Router) Send(ctx context.Context, msg Message) *Pending {
	return r.SendTo(ctx, Destination(msg.Action()), msg)
}

// SendTo delivers msg to surface s and returns without waiting.
func (r *Router) SendTo(ctx context.Context, s Surface, msg Message) *Pending {
	p := newPending()

	r.mu.RLock()
	ep := r.endpoints[s]
	r.mu.RUnlock()

	var h Handler
	if ep != nil {
		h = ep.handler(msg.Action())
	}
	if h == nil {
		err := &NoReceiverError{Surface: s, Action: msg.Action()}
		r.logger.WarnContext(ctx, "bridge: delivery failed", "surface", s, "action", msg.Action(), "error", err)
		p.resolve(Response{}, err)
		return p
	}

	go r.dispatch(ep, h, msg, p)
	return p
}

type outcome struct {
	resp Response
	err  error
}

func (r *Router) dispatch(ep *Endpoint, h Handler, msg Message, p *Pending) {
	result := make(chan outcome, 1)
	go func() {
		resp, err := h(ep.ctx, msg)
		result <- outcome{resp, err}
	}()

	select {
	case o := <-result:
		p.resolve(o.resp, o.err)
	case <-ep.ctx.Done():
		select {
		case o := <-result:
			p.resolve(o.resp, o.err)
		default:
			r.logger.Debug("bridge: request abandoned", "surface", ep.surface, "action", msg.Action())
			p.resolve(Response{}, ErrNoResponse)
		}
	}
}

// Post sends msg without waiting. Failures are logged.
func (r *Router) Post(ctx context.Context, msg Message) {
	p := r.Send(ctx, msg)
	go func() {
		<-p.Done()
		resp, err := p.Result()
		switch {
		case err != nil:
			r.logger.WarnContext(ctx, "bridge: post failed", "action", msg.Action(), "error", err)
		case !resp.Success:
			r.logger.WarnContext(ctx, "bridge: post rejected", "action", msg.Action(), "error", resp.Error)
		}
	}()
}

// Request sends msg and waits up to timeout. Any failure is folded into
// {success:false, error}.
func (r *Router) Request(ctx context.Context, msg Message, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := r.Send(ctx, msg).Wait(ctx)
	if err != nil {
		return Fail(err)
	}
	return resp
}

// Pending is an in-flight request.
type Pending struct {
	done chan struct{}
	once sync.Once
	resp Response
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(resp Response, err error) {
	p.once.Do(func() {
		p.resp, p.err = resp, err
		close(p.done)
	})
}

// Done is closed once the request resolves.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the outcome. Only meaningful after Done is closed.
func (p *Pending) Result() (Response, error) { return p.resp, p.err }

// Wait blocks until the request resolves or ctx ends. A caller that stops
// waiting gets ErrNoResponse.
func (p *Pending) Wait(ctx context.Context) (Response, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return Response{}, ErrNoResponse
	}
}
