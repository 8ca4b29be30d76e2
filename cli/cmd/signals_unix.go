//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// simulateSignals request a skill simulation from a running engine.
var simulateSignals = []os.Signal{syscall.SIGUSR1}
