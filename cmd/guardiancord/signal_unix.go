//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that stop the daemon: Ctrl+C and the
// SIGTERM sent by service managers.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
