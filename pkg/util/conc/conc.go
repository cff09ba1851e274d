// Package conc 提供 panic 安全的 goroutine 辅助函数。
package conc

import (
	"fmt"
	"runtime/debug"
)

// RecoverHandler panic 回调，由进程入口注入（通常记录日志）。
var RecoverHandler func(r any, stack []byte)

// Go 启动一个带 panic 保护的 goroutine。
// 网络会话的读写循环必须经由此函数启动，避免单个会话的 panic 拖垮进程。
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if RecoverHandler != nil {
					RecoverHandler(r, debug.Stack())
					return
				}
				fmt.Printf("panic recovered: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}
