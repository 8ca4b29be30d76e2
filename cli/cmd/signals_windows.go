//go:build windows

package cmd

import "os"

// Windows has no user signals; simulations run only with --auto-simulate.
var simulateSignals []os.Signal
