//go:build windows

package main

import (
	"os"
	"os/exec"
)

// restartProcess starts a fresh copy of exe; the caller exits afterwards.
func restartProcess(exe string, args []string) error {
	//nolint:gosec // G204: relaunches our own executable with our own arguments
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
