//go:build !windows

package main

import (
	"os"
	"syscall"
)

// restartProcess replaces this process with a fresh copy of exe.
func restartProcess(exe string, args []string) error {
	argv := append([]string{exe}, args...)
	//nolint:gosec // G204: re-executes our own binary with our own arguments
	return syscall.Exec(exe, argv, os.Environ())
}
