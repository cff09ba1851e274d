//go:build windows

package app

import (
	"os"
	"syscall"
)

// shutdownSignals Windows 额外监听 SIGBREAK (Ctrl-Break)
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT, syscall.Signal(21)}
