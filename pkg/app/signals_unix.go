//go:build !windows

package app

import (
	"os"
	"syscall"
)

// shutdownSignals 请求有序停机的信号集合
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT}
