// Package arena 提供固定大小窗口的连续缓冲区。
//
// 整块内存一次性分配，按 windowSize 切成 windowCount 个窗口，每个接入连接
// 持有一个窗口作为接收缓冲区。窗口数量在创建时确定，不会增长。
package arena

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Window 是 arena 中的一段缓冲区
type Window struct {
	arena  *Arena
	index  int
	offset int
	size   int
}

// Bytes 返回窗口对应的切片，容量等于窗口大小，append 不会越界写入相邻窗口
func (w Window) Bytes() []byte {
	if w.arena == nil {
		return nil
	}
	return w.arena.slab[w.offset : w.offset+w.size : w.offset+w.size]
}

// Offset 窗口在 slab 中的偏移
func (w Window) Offset() int { return w.offset }

// Len 窗口大小
func (w Window) Len() int { return w.size }

// Valid 是否为已分配的窗口
func (w Window) Valid() bool { return w.arena != nil }

// Stats arena 统计
type Stats struct {
	Capacity   int // 窗口总数
	InUse      int // 已分配窗口数
	WindowSize int
}

// Arena 固定窗口缓冲区
type Arena struct {
	slab       []byte
	windowSize int

	mu       sync.Mutex
	free     []int
	assigned []bool
}

// New 创建 arena，分配 windowSize*windowCount 字节
func New(windowSize, windowCount int) (*Arena, error) {
	if windowSize <= 0 || windowCount <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "size=%d count=%d", windowSize, windowCount)
	}

	a := &Arena{
		slab:       make([]byte, windowSize*windowCount),
		windowSize: windowSize,
		free:       make([]int, windowCount),
		assigned:   make([]bool, windowCount),
	}
	// 低序号窗口优先分配
	for i := range a.free {
		a.free[i] = windowCount - 1 - i
	}
	return a, nil
}

// Assign 分配一个空闲窗口
func (a *Arena) Assign() (Window, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.free)
	if n == 0 {
		return Window{}, ErrExhausted
	}
	idx := a.free[n-1]
	a.free = a.free[:n-1]
	a.assigned[idx] = true

	return Window{
		arena:  a,
		index:  idx,
		offset: idx * a.windowSize,
		size:   a.windowSize,
	}, nil
}

// Free 归还窗口，重复释放或释放其他 arena 的窗口返回断言错误
func (a *Arena) Free(w Window) error {
	if w.arena != a {
		return errors.AssertionFailedf("arena: window does not belong to this arena")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.assigned[w.index] {
		return errors.AssertionFailedf("arena: window %d freed twice", w.index)
	}
	a.assigned[w.index] = false
	a.free = append(a.free, w.index)
	return nil
}

// WindowSize 单个窗口大小
func (a *Arena) WindowSize() int {
	return a.windowSize
}

// Stats 返回统计信息
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := len(a.assigned)
	return Stats{
		Capacity:   total,
		InUse:      total - len(a.free),
		WindowSize: a.windowSize,
	}
}
