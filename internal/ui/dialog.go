package ui

import (
	"sync"

	"github.com/rs/zerolog"
)

// DialogMsg asks the program to show a modal error. Done is closed when the
// user dismisses it.
type DialogMsg struct {
	Title   string
	Message string
	Detail  string
	Done    chan struct{}
}

func (d *DialogMsg) dismiss() {
	if d == nil || d.Done == nil {
		return
	}
	select {
	case <-d.Done:
	default:
		close(d.Done)
	}
}

// Dialog shows blocking error dialogs on the terminal surface.
type Dialog struct {
	surface *Surface
	log     zerolog.Logger

	mu     sync.Mutex
	closed chan struct{}
}

// NewDialog returns a Dialog drawing on surface.
func NewDialog(surface *Surface, log zerolog.Logger) *Dialog {
	return &Dialog{
		surface: surface,
		log:     log,
		closed:  make(chan struct{}),
	}
}

// Error shows a modal and blocks until it is dismissed or the program stops.
// Without an attached program the error is only logged.
func (d *Dialog) Error(title, message, detail string) {
	d.log.Error().Str("title", title).Str("detail", detail).Msg(message)

	d.surface.mu.RLock()
	send := d.surface.send
	d.surface.mu.RUnlock()
	if send == nil {
		return
	}

	msg := &DialogMsg{Title: title, Message: message, Detail: detail, Done: make(chan struct{})}
	send(msg)

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	select {
	case <-msg.Done:
	case <-closed:
	}
}

// Close releases any Error call still waiting for the user.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.closed:
	default:
		close(d.closed)
	}
}
