// pkg/pool/bytebuff/pool.go
// 基于 valyala/bytebufferpool 的定长读缓冲池
// 出站客户端不受准入信号量约束，不能占用服务器的 arena 窗口，读缓冲从这里借还
package bytebuff

import (
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

const (
	// 超过此大小的 buffer 不放回池中，让 GC 回收
	maxPooledSize = 1 << 20
)

// Pool 定长读缓冲池
type Pool struct {
	pool bytebufferpool.Pool

	// 统计信息
	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64 // 取出的 buffer 容量不足需要扩容的次数
}

// defaultPool 是默认的全局池
var defaultPool = NewPool()

// NewPool 创建读缓冲池
func NewPool() *Pool {
	return &Pool{}
}

// Get 获取一个 len(B) == size 的 ByteBuffer
func (p *Pool) Get(size int) *bytebufferpool.ByteBuffer {
	p.gets.Add(1)

	buf := p.pool.Get()
	if size <= 0 {
		return buf
	}
	if cap(buf.B) < size {
		p.misses.Add(1)
		buf.B = make([]byte, size)
		return buf
	}
	buf.B = buf.B[:size]
	return buf
}

// Put 将 ByteBuffer 归还到池中
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf == nil {
		return
	}
	if cap(buf.B) > maxPooledSize {
		return
	}

	p.puts.Add(1)
	p.pool.Put(buf)
}

// Stats 返回池的统计信息
func (p *Pool) Stats() (gets, puts, misses uint64) {
	return p.gets.Load(), p.puts.Load(), p.misses.Load()
}

// --- 全局便捷函数 ---

// Get 从默认池中获取定长 ByteBuffer
func Get(size int) *bytebufferpool.ByteBuffer {
	return defaultPool.Get(size)
}

// Put 将 ByteBuffer 归还到默认池中
func Put(buf *bytebufferpool.ByteBuffer) {
	defaultPool.Put(buf)
}

// Stats 返回默认池的统计信息
func Stats() (gets, puts, misses uint64) {
	return defaultPool.Stats()
}
