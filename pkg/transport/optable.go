package transport

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/arena"
)

// OpKind I/O 操作类型
type OpKind uint8

const (
	OpNone OpKind = iota
	OpAccept
	OpReceive
	OpSend
	OpShutdown
)

func (k OpKind) String() string {
	switch k {
	case OpAccept:
		return "accept"
	case OpReceive:
		return "receive"
	case OpSend:
		return "send"
	case OpShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// OpContext 一次 I/O 操作的上下文
type OpContext struct {
	Kind   OpKind
	Conn   ConnID
	Window arena.Window

	// Done 操作完成时调用
	Done func(n int, err error)
}

// OpHandle 指向 OpTable 槽位的句柄
// 槽位释放后 generation 递增，旧句柄随即失效
type OpHandle struct {
	index      uint32
	generation uint32
}

type opSlot struct {
	generation uint32
	used       bool
	ctx        OpContext
}

// OpTable 以 index+generation 寻址的 I/O 上下文表
type OpTable struct {
	mu    sync.Mutex
	slots []*opSlot
	free  []uint32
	inUse int
}

// NewOpTable 创建上下文表，预分配 prealloc 个槽位
func NewOpTable(prealloc int) *OpTable {
	t := &OpTable{}
	if prealloc > 0 {
		t.slots = make([]*opSlot, 0, prealloc)
		t.free = make([]uint32, 0, prealloc)
		for i := 0; i < prealloc; i++ {
			t.slots = append(t.slots, &opSlot{})
			t.free = append(t.free, uint32(prealloc-1-i))
		}
	}
	return t
}

// Acquire 取出一个槽位并初始化
func (t *OpTable) Acquire(kind OpKind, conn ConnID) OpHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, &opSlot{})
	}

	slot := t.slots[idx]
	slot.used = true
	slot.ctx = OpContext{Kind: kind, Conn: conn}
	t.inUse++

	return OpHandle{index: idx, generation: slot.generation}
}

// Get 按句柄取上下文，句柄过期时返回断言错误
// 返回的指针只在句柄释放前有效
func (t *OpTable) Get(h OpHandle) (*OpContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	return &slot.ctx, nil
}

// Release 释放槽位，重复释放返回断言错误
func (t *OpTable) Release(h OpHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, err := t.lookup(h)
	if err != nil {
		return err
	}
	slot.used = false
	slot.generation++
	slot.ctx = OpContext{}
	t.free = append(t.free, h.index)
	t.inUse--
	return nil
}

// InUse 已占用的槽位数
func (t *OpTable) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inUse
}

func (t *OpTable) lookup(h OpHandle) (*opSlot, error) {
	if int(h.index) >= len(t.slots) {
		return nil, errors.AssertionFailedf("transport: op handle %d out of range", h.index)
	}
	slot := t.slots[h.index]
	if !slot.used || slot.generation != h.generation {
		return nil, errors.AssertionFailedf("transport: stale op handle %d (generation %d, current %d)",
			h.index, h.generation, slot.generation)
	}
	return slot, nil
}
