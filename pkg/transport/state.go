package transport

import (
	"sync/atomic"
	"time"
)

// closePollInterval Close 等待在途操作结束时的轮询间隔
const closePollInterval = 10 * time.Millisecond

// Transport 服务端与客户端的公共生命周期
type Transport interface {
	Open() error
	Close() error
	IsRunning() bool
	IsBusy() bool
}

// State 传输状态
type State int32

const (
	StateIdle State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// lifecycle 状态机与在途操作计数
// 关闭不可逆，关闭后的实例不能再次 Open
type lifecycle struct {
	state atomic.Int32
	busy  atomic.Int64
}

// toOpen idle -> open
func (l *lifecycle) toOpen() error {
	if l.state.CompareAndSwap(int32(StateIdle), int32(StateOpen)) {
		return nil
	}
	if State(l.state.Load()) == StateOpen {
		return ErrAlreadyOpen
	}
	return ErrClosed
}

// rollbackOpen 打开失败时回到 idle
func (l *lifecycle) rollbackOpen() {
	l.state.CompareAndSwap(int32(StateOpen), int32(StateIdle))
}

// toClosed open -> closed，只有第一次调用返回 true
func (l *lifecycle) toClosed() bool {
	if l.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return true
	}
	l.state.CompareAndSwap(int32(StateIdle), int32(StateClosed))
	return false
}

// State 返回当前状态
func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// IsRunning 是否处于运行状态
func (l *lifecycle) IsRunning() bool {
	return State(l.state.Load()) == StateOpen
}

// IsBusy 是否有在途操作
func (l *lifecycle) IsBusy() bool {
	return l.busy.Load() > 0
}

func (l *lifecycle) begin() { l.busy.Add(1) }

func (l *lifecycle) end() { l.busy.Add(-1) }

// waitFor 轮询直到 cond 成立
func waitFor(cond func() bool) {
	for !cond() {
		time.Sleep(closePollInterval)
	}
}

var (
	_ Transport = (*Server)(nil)
	_ Transport = (*Client)(nil)
)
