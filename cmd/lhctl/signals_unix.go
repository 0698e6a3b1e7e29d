//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// SIGUSR1 sends the engine to the background, SIGUSR2 brings it back
var lifecycleSignals = []os.Signal{unix.SIGUSR1, unix.SIGUSR2}

func isBackgroundSignal(sig os.Signal) bool {
	return sig == unix.SIGUSR1
}
