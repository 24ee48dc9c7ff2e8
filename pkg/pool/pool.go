// Package pool 提供可复用对象池。
//
// 与 sync.Pool 不同，Pool 中的空闲对象不会被 GC 回收：接入连接、I/O 上下文
// 在服务器生命周期内反复复用，实际使用量由外部的准入控制约束，池本身不设上限。
package pool

import (
	"sync"
	"sync/atomic"
)

// Option 对象池配置选项
type Option[T any] func(*Pool[T])

// WithReset 设置归还时的重置函数，清空对象上的可变状态
func WithReset[T any](fn func(T)) Option[T] {
	return func(p *Pool[T]) {
		p.reset = fn
	}
}

// WithDispose 设置销毁函数，Dispose 时对每个空闲对象调用
func WithDispose[T any](fn func(T)) Option[T] {
	return func(p *Pool[T]) {
		p.dispose = fn
	}
}

// WithPrealloc 预先创建 n 个空闲对象
func WithPrealloc[T any](n int) Option[T] {
	return func(p *Pool[T]) {
		p.prealloc = n
	}
}

// Stats 对象池统计
type Stats struct {
	Created  uint64
	Acquired uint64
	Released uint64
	Idle     int
}

// Pool 线程安全的可复用对象池，按需增长
type Pool[T any] struct {
	factory  func() T
	reset    func(T)
	dispose  func(T)
	prealloc int

	mu       sync.Mutex
	idle     []T
	disposed bool

	created  atomic.Uint64
	acquired atomic.Uint64
	released atomic.Uint64
}

// New 创建对象池，factory 在没有空闲对象时被调用
func New[T any](factory func() T, opts ...Option[T]) *Pool[T] {
	p := &Pool[T]{factory: factory}
	for _, opt := range opts {
		opt(p)
	}

	if p.prealloc > 0 {
		p.idle = make([]T, 0, p.prealloc)
		for i := 0; i < p.prealloc; i++ {
			p.idle = append(p.idle, p.factory())
			p.created.Add(1)
		}
	}
	return p
}

// Acquire 取出一个空闲对象，没有时通过 factory 新建
func (p *Pool[T]) Acquire() T {
	p.acquired.Add(1)

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		item := p.idle[n-1]
		var zero T
		p.idle[n-1] = zero
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return item
	}
	p.mu.Unlock()

	p.created.Add(1)
	return p.factory()
}

// Release 重置对象并放回空闲集合
// 池已 Dispose 时直接销毁对象
func (p *Pool[T]) Release(item T) {
	p.released.Add(1)
	if p.reset != nil {
		p.reset(item)
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		if p.dispose != nil {
			p.dispose(item)
		}
		return
	}
	p.idle = append(p.idle, item)
	p.mu.Unlock()
}

// Dispose 清空并销毁所有空闲对象
func (p *Pool[T]) Dispose() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.disposed = true
	p.mu.Unlock()

	if p.dispose == nil {
		return
	}
	for _, item := range idle {
		p.dispose(item)
	}
}

// Stats 返回统计信息
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()

	return Stats{
		Created:  p.created.Load(),
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
		Idle:     idle,
	}
}
