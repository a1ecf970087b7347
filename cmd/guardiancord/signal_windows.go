//go:build windows

package main

import "os"

// shutdownSignals holds only os.Interrupt; the runtime maps Ctrl+Break and
// console close onto it.
var shutdownSignals = []os.Signal{os.Interrupt}
