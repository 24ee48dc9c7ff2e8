package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/xdooria-lb/pkg/arena"
)

// ConnID 服务端为每个接入连接分配的唯一编号，单调递增
type ConnID uint64

// AcceptedClient 服务端接入的连接
// 对象由池复用，断开后不要在回调之外持有
type AcceptedClient struct {
	id         atomic.Uint64
	conn       net.Conn
	acceptedAt time.Time
	remote     string
	window     arena.Window
	op         OpHandle

	// 正在使用该连接的发送方数量
	busy atomic.Int32

	closing  atomic.Bool
	finished atomic.Bool

	mu     sync.Mutex
	reason error
	tag    any
	data   map[string]any
}

func newAcceptedClient() *AcceptedClient {
	return &AcceptedClient{}
}

// ID 连接编号
func (c *AcceptedClient) ID() ConnID {
	return ConnID(c.id.Load())
}

// RemoteAddr 对端地址文本
func (c *AcceptedClient) RemoteAddr() string {
	return c.remote
}

// Conn 底层连接
func (c *AcceptedClient) Conn() net.Conn {
	return c.conn
}

// AcceptedAt 接入时间
func (c *AcceptedClient) AcceptedAt() time.Time {
	return c.acceptedAt
}

// IsConnected 连接是否仍然可用
func (c *AcceptedClient) IsConnected() bool {
	return c.conn != nil && !c.closing.Load()
}

// IsBusy 是否有发送正在进行
func (c *AcceptedClient) IsBusy() bool {
	return c.busy.Load() > 0
}

// Tag 返回关联的用户对象
func (c *AcceptedClient) Tag() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tag
}

// SetTag 关联用户对象
func (c *AcceptedClient) SetTag(tag any) {
	c.mu.Lock()
	c.tag = tag
	c.mu.Unlock()
}

// Get 读取附加数据
func (c *AcceptedClient) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// Set 写入附加数据
func (c *AcceptedClient) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]any)
	}
	c.data[key] = value
}

func (c *AcceptedClient) attach(id ConnID, conn net.Conn, w arena.Window, op OpHandle) {
	c.conn = conn
	c.window = w
	c.op = op
	c.acceptedAt = time.Now()
	if addr := conn.RemoteAddr(); addr != nil {
		c.remote = addr.String()
	}
	c.closing.Store(false)
	c.finished.Store(false)
	c.id.Store(uint64(id))
}

// acquire 发送方占用连接，连接已关闭或已被复用时返回 false
func (c *AcceptedClient) acquire(id ConnID) bool {
	c.busy.Add(1)
	if c.closing.Load() || c.ID() != id {
		c.busy.Add(-1)
		return false
	}
	return true
}

func (c *AcceptedClient) release() {
	c.busy.Add(-1)
}

// markClosing 关闭底层连接并记录原因，只有第一次调用生效
func (c *AcceptedClient) markClosing(reason error) bool {
	if !c.closing.CompareAndSwap(false, true) {
		return false
	}
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	_ = c.conn.Close()
	return true
}

func (c *AcceptedClient) closeReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *AcceptedClient) reset() {
	c.id.Store(0)
	c.conn = nil
	c.window = arena.Window{}
	c.op = OpHandle{}
	c.remote = ""
	c.acceptedAt = time.Time{}

	c.mu.Lock()
	c.reason = nil
	c.tag = nil
	c.data = nil
	c.mu.Unlock()
}
