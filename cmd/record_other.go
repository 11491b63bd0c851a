//go:build !unix

package cmd

import "os"

var saveSignals []os.Signal
