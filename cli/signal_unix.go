//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// StopSignals are used to gracefully exit.
// An example is exiting the server, where we want to flush the analytics
// messages already in flight before exiting.
var StopSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGHUP,
}
