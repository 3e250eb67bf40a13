//go:build windows

package main

import "os"

// stopSignals are the signals that interrupt a run.
var stopSignals = []os.Signal{os.Interrupt}
