//go:build unix

package cmd

import (
	"os"
	"syscall"
)

var saveSignals = []os.Signal{syscall.SIGUSR1}
