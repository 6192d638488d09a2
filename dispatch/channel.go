package dispatch

import (
	"context"
	"sync"

	"github.com/drippler/drippler"
)

// Handler processes a request inside the background process.
type Handler interface {
	Handle(ctx context.Context, req drippler.Request) drippler.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req drippler.Request) drippler.Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req drippler.Request) drippler.Response {
	return f(ctx, req)
}

// Channel delivers requests to the background process. An error means the
// request never reached a handler; it is classified as
// drippler.KindChannelUnavailable when the receiving side is not there.
type Channel interface {
	Send(ctx context.Context, req drippler.Request) (drippler.Response, error)
}

// LocalChannel delivers requests to a handler in the same process. It is
// unavailable until a handler is attached, like a background process that has
// not started yet.
type LocalChannel struct {
	mu sync.RWMutex
	h  Handler
}

// NewLocalChannel returns a channel attached to h. h may be nil.
func NewLocalChannel(h Handler) *LocalChannel {
	return &LocalChannel{h: h}
}

// Attach sets the receiving handler.
func (c *LocalChannel) Attach(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.h = h
}

// Detach removes the receiving handler.
func (c *LocalChannel) Detach() {
	c.Attach(nil)
}

// Send implements Channel.
func (c *LocalChannel) Send(ctx context.Context, req drippler.Request) (drippler.Response, error) {
	c.mu.RLock()
	h := c.h
	c.mu.RUnlock()

	if h == nil {
		return drippler.Response{}, drippler.ErrChannelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return drippler.Response{}, drippler.Wrap(drippler.KindChannelUnavailable, req.Action, err)
	}
	return h.Handle(ctx, req), nil
}
