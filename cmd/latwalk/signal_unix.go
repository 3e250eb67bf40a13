//go:build !windows

package main

import (
	"os"
	"syscall"
)

// stopSignals are the signals that interrupt a run.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
