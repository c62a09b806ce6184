package ipc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"updatekit/internal/status"
)

// ErrNoHandler is returned by Dispatch when nothing is registered for a message.
var ErrNoHandler = errors.New("no handler registered")

// Handler processes one inbound message.
type Handler func(ctx context.Context, msg Message) error

// Router dispatches inbound messages to registered handlers. Serve handles
// one message at a time, so a handler always runs to completion before the
// next message is looked at.
type Router struct {
	handlers cmap.ConcurrentMap[string, Handler]
	log      zerolog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.log = l
	}
}

// NewRouter returns an empty router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		handlers: cmap.New[Handler](),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func routeKey(kind Kind, name string) string {
	return string(kind) + "/" + name
}

// Handle registers h for the given kind and name, replacing any previous handler.
func (r *Router) Handle(kind Kind, name string, h Handler) {
	r.handlers.Upsert(routeKey(kind, name), h, func(exist bool, old, fresh Handler) Handler {
		if exist {
			r.log.Debug().Str("route", routeKey(kind, name)).Msg("replacing handler")
		}
		return fresh
	})
}

// HandleStatus registers a handler for a status message.
func (r *Router) HandleStatus(s status.Status, h Handler) {
	r.Handle(KindStatus, string(s), h)
}

// HandleCommand registers a handler for a command message.
func (r *Router) HandleCommand(c status.Command, h Handler) {
	r.Handle(KindCommand, string(c), h)
}

// Routes returns the registered route keys in sorted order.
func (r *Router) Routes() []string {
	keys := r.handlers.Keys()
	sort.Strings(keys)
	return keys
}

// Dispatch runs the handler registered for msg.
func (r *Router) Dispatch(ctx context.Context, msg Message) error {
	h, ok := r.handlers.Get(routeKey(msg.Kind, msg.Name))
	if !ok {
		return fmt.Errorf("%s: %w", msg, ErrNoHandler)
	}
	return h(ctx, msg)
}

// Serve dispatches messages received on ep until the endpoint closes or ctx
// is cancelled. Handler errors are logged and do not stop the loop.
func (r *Router) Serve(ctx context.Context, ep Endpoint) error {
	in := ep.Receive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.Dispatch(ctx, msg); err != nil {
				r.log.Warn().Err(err).Str("message", msg.String()).Msg("dispatch failed")
			}
		}
	}
}
