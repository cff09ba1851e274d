// Package bytebuff 提供分级的 bytes.Buffer 对象池。
// 报文编解码路径的临时缓冲统一从这里获取。
package bytebuff

import (
	"bytes"
	"sync"
	"sync/atomic"
)

const (
	maxSize  = 1 << 20 // 超过 1MB 的 buffer 不放回池中
	numPools = 5
)

// 分级大小: 64B, 512B, 4KB, 32KB, 256KB
var poolSizes = [numPools]int{
	1 << 6,
	1 << 9,
	1 << 12,
	1 << 15,
	1 << 18,
}

// Pool 分级的 bytes.Buffer 对象池
type Pool struct {
	pools [numPools]sync.Pool

	gets   uint64
	puts   uint64
	misses uint64
}

var defaultPool = NewPool()

// NewPool 创建分级 buffer pool
func NewPool() *Pool {
	p := &Pool{}
	for i := 0; i < numPools; i++ {
		p.pools[i].New = func() interface{} {
			return &bytes.Buffer{}
		}
	}
	return p
}

// Get 从池中获取一个 Buffer，sizeHint 用于选择分级
func (p *Pool) Get(sizeHint int) *bytes.Buffer {
	atomic.AddUint64(&p.gets, 1)

	idx := selectPool(sizeHint)
	buf := p.pools[idx].Get().(*bytes.Buffer)

	if buf.Cap() < sizeHint {
		atomic.AddUint64(&p.misses, 1)
		buf.Grow(sizeHint - buf.Cap())
	}

	return buf
}

// Put 将 Buffer 归还到池中
func (p *Pool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxSize {
		return
	}

	atomic.AddUint64(&p.puts, 1)

	buf.Reset()
	p.pools[selectPool(buf.Cap())].Put(buf)
}

func selectPool(size int) int {
	if size <= 0 {
		return 0
	}
	for i := 0; i < numPools; i++ {
		if size <= poolSizes[i] {
			return i
		}
	}
	return numPools - 1
}

// Stats 返回池的统计信息
func (p *Pool) Stats() (gets, puts, misses uint64) {
	return atomic.LoadUint64(&p.gets),
		atomic.LoadUint64(&p.puts),
		atomic.LoadUint64(&p.misses)
}

// Get 从默认池中获取一个 Buffer
func Get(sizeHint int) *bytes.Buffer {
	return defaultPool.Get(sizeHint)
}

// Put 将 Buffer 归还到默认池
func Put(buf *bytes.Buffer) {
	defaultPool.Put(buf)
}
