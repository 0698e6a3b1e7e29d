//go:build !unix

package main

import "os"

var lifecycleSignals []os.Signal

func isBackgroundSignal(os.Signal) bool {
	return false
}
