package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// processLifecycle restarts or stops this process on behalf of the update
// service. The quit function is bound once the UI program or the headless
// loop exists. A relaunch only records the executable; the restart happens
// in finish, after the UI has released the terminal.
type processLifecycle struct {
	log      zerolog.Logger
	quitting atomic.Bool

	mu      sync.Mutex
	quit    func()
	pending string

	exe     func() (string, error)
	stat    func(string) (os.FileInfo, error)
	restart func(exe string, args []string) error
	args    []string
}

func newProcessLifecycle(log zerolog.Logger) *processLifecycle {
	return &processLifecycle{
		log:     log,
		exe:     os.Executable,
		stat:    os.Stat,
		restart: restartProcess,
		args:    os.Args[1:],
	}
}

// BindQuit sets what Quit calls.
func (l *processLifecycle) BindQuit(quit func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quit = quit
}

func (l *processLifecycle) SetQuitting() {
	l.quitting.Store(true)
}

// Quitting reports whether an install asked the process to exit.
func (l *processLifecycle) Quitting() bool {
	return l.quitting.Load()
}

// Relaunch stops this process and arranges for the executable, which now
// holds the installed update, to replace it.
func (l *processLifecycle) Relaunch() error {
	exe, err := l.exe()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if _, err := l.stat(exe); err != nil {
		return fmt.Errorf("relaunch %s: %w", exe, err)
	}
	l.log.Info().Str("exe", exe).Msg("relaunch requested")
	l.mu.Lock()
	l.pending = exe
	l.mu.Unlock()
	l.Quit()
	return nil
}

func (l *processLifecycle) Quit() {
	l.mu.Lock()
	quit := l.quit
	l.mu.Unlock()
	l.log.Info().Msg("quitting")
	if quit != nil {
		quit()
	}
}

// finish restarts the process if a relaunch was requested. On Unix it does
// not return on success.
func (l *processLifecycle) finish() error {
	l.mu.Lock()
	exe := l.pending
	l.pending = ""
	l.mu.Unlock()
	if exe == "" {
		return nil
	}
	l.log.Info().Str("exe", exe).Msg("relaunching")
	if err := l.restart(exe, l.args); err != nil {
		return fmt.Errorf("relaunch %s: %w", exe, err)
	}
	return nil
}
