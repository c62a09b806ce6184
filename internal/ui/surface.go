package ui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"updatekit/internal/renderer"
)

// PanelMsg carries a panel drawn by the renderer into the Bubble Tea loop.
type PanelMsg struct {
	Panel renderer.Panel
}

// BadgeMsg toggles the "update ready" badge.
type BadgeMsg struct {
	On bool
}

// Surface is the renderer's view of the terminal UI. The settings screen
// reports itself visible while it is open; drawing is forwarded to the
// running program as messages.
type Surface struct {
	visible atomic.Bool
	badge   atomic.Bool

	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewSurface returns a detached Surface. Draws are dropped until Attach.
func NewSurface() *Surface {
	return &Surface{}
}

// Attach forwards draws to p.
func (s *Surface) Attach(p *tea.Program) {
	s.AttachFunc(p.Send)
}

// AttachFunc forwards draws to send.
func (s *Surface) AttachFunc(send func(tea.Msg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = send
}

// Detach stops forwarding draws.
func (s *Surface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = nil
}

// SetVisible records whether the settings screen is open.
func (s *Surface) SetVisible(v bool) {
	s.visible.Store(v)
}

// Visible implements renderer.Surface.
func (s *Surface) Visible() bool {
	return s.visible.Load()
}

// Render implements renderer.Surface.
func (s *Surface) Render(p renderer.Panel) {
	s.dispatch(PanelMsg{Panel: p})
}

// SetBadge implements renderer.Surface.
func (s *Surface) SetBadge(on bool) {
	s.badge.Store(on)
	s.dispatch(BadgeMsg{On: on})
}

// Badge reports whether the badge is set.
func (s *Surface) Badge() bool {
	return s.badge.Load()
}

func (s *Surface) dispatch(msg tea.Msg) {
	s.mu.RLock()
	send := s.send
	s.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}
