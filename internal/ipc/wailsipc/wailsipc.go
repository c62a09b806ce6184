// Package wailsipc bridges ipc messages to a Wails frontend. Statuses are
// emitted as runtime events named after the status; the frontend sends
// commands as events named after the command.
package wailsipc

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"updatekit/internal/ipc"
	"updatekit/internal/status"
)

// Runtime is the part of the Wails runtime used here.
type Runtime interface {
	EventsEmit(ctx context.Context, name string, data ...interface{})
	EventsOn(ctx context.Context, name string, callback func(data ...interface{})) func()
	MessageDialog(ctx context.Context, opts runtime.MessageDialogOptions) (string, error)
	Quit(ctx context.Context)
}

// WailsRuntime forwards to the Wails runtime package. The context must be
// the one Wails passes to OnStartup.
type WailsRuntime struct{}

func (WailsRuntime) EventsEmit(ctx context.Context, name string, data ...interface{}) {
	runtime.EventsEmit(ctx, name, data...)
}

func (WailsRuntime) EventsOn(ctx context.Context, name string, callback func(data ...interface{})) func() {
	return runtime.EventsOn(ctx, name, callback)
}

func (WailsRuntime) MessageDialog(ctx context.Context, opts runtime.MessageDialogOptions) (string, error) {
	return runtime.MessageDialog(ctx, opts)
}

func (WailsRuntime) Quit(ctx context.Context) {
	runtime.Quit(ctx)
}

// Endpoint is the service side of the Wails bridge.
type Endpoint struct {
	ctx context.Context
	rt  Runtime
	log zerolog.Logger

	mu     sync.RWMutex
	closed bool
	in     chan ipc.Message
	offs   []func()
}

// NewEndpoint listens for every command event on the frontend.
func NewEndpoint(ctx context.Context, rt Runtime, log zerolog.Logger) *Endpoint {
	e := &Endpoint{
		ctx: ctx,
		rt:  rt,
		log: log,
		in:  make(chan ipc.Message, ipc.DefaultPipeBuffer),
	}
	for _, c := range status.Commands() {
		cmd := c
		off := rt.EventsOn(ctx, cmd.String(), func(data ...interface{}) {
			e.deliver(cmd, data)
		})
		e.offs = append(e.offs, off)
	}
	return e
}

func (e *Endpoint) deliver(cmd status.Command, data []interface{}) {
	msg := ipc.CommandMessage(cmd)
	if len(data) > 0 && data[0] != nil {
		raw, err := json.Marshal(data[0])
		if err != nil {
			e.log.Warn().Err(err).Str("command", cmd.String()).Msg("dropping unencodable command data")
		} else {
			msg.Payload = raw
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.in <- msg:
	default:
		e.log.Warn().Str("command", cmd.String()).Msg("inbound buffer full, dropping command")
	}
}

// Send emits a status event to the frontend.
func (e *Endpoint) Send(ctx context.Context, msg ipc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ipc.ErrClosed
	}
	if msg.HasPayload() {
		e.rt.EventsEmit(e.ctx, msg.Name, msg.Payload)
	} else {
		e.rt.EventsEmit(e.ctx, msg.Name)
	}
	return nil
}

// Receive implements ipc.Endpoint.
func (e *Endpoint) Receive() <-chan ipc.Message {
	return e.in
}

// Close removes the event listeners.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.in)
	offs := e.offs
	e.offs = nil
	e.mu.Unlock()

	for _, off := range offs {
		if off != nil {
			off()
		}
	}
	return nil
}

// Dialog shows native error dialogs.
type Dialog struct {
	ctx context.Context
	rt  Runtime
	log zerolog.Logger
}

// NewDialog returns a Dialog bound to the Wails context.
func NewDialog(ctx context.Context, rt Runtime, log zerolog.Logger) *Dialog {
	return &Dialog{ctx: ctx, rt: rt, log: log}
}

// Error shows a blocking error dialog.
func (d *Dialog) Error(title, message, detail string) {
	text := message
	if detail = strings.TrimSpace(detail); detail != "" {
		text += "\n\n" + detail
	}
	if _, err := d.rt.MessageDialog(d.ctx, runtime.MessageDialogOptions{
		Type:    runtime.ErrorDialog,
		Title:   title,
		Message: text,
	}); err != nil {
		d.log.Warn().Err(err).Str("title", title).Msg("error dialog failed")
	}
}

// QuitFunc returns a function that asks the Wails application to exit.
func QuitFunc(ctx context.Context, rt Runtime) func() {
	return func() {
		rt.Quit(ctx)
	}
}
