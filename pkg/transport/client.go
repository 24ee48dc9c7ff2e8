package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/lk2023060901/xdooria-lb/pkg/pool/bytebuff"
)

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithClientLogger 设置日志
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.OrNoop(l)
	}
}

// WithClientHandler 设置事件回调
func WithClientHandler(h ClientHandler) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.handler = h
		}
	}
}

// WithClientWorkers 指定运行接收循环的协程池
func WithClientWorkers(w *WorkerPool) ClientOption {
	return func(c *Client) {
		c.workers = w
	}
}

// DialFunc 自定义拨号，必须响应 ctx 取消
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// WithClientDialer 替换默认的 net.Dialer
func WithClientDialer(fn DialFunc) ClientOption {
	return func(c *Client) {
		c.dialFn = fn
	}
}

// WithTag 关联用户对象
func WithTag(tag any) ClientOption {
	return func(c *Client) {
		c.tag = tag
	}
}

// Client 异步 TCP 客户端，一个实例对应一条出站连接
type Client struct {
	lifecycle

	config  *ClientConfig
	handler ClientHandler
	logger  logger.Logger
	workers *WorkerPool
	dialFn  DialFunc
	tag     any

	mu         sync.Mutex
	conn       net.Conn
	cancelDial context.CancelFunc
	torn       atomic.Bool
	loopDone   chan struct{}
}

// NewClient 创建客户端
func NewClient(cfg *ClientConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	c := *cfg
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultMaxBufferSize
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cl := &Client{
		config:  &c,
		handler: NopClientHandler{},
		logger:  logger.NewNoop(),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// Addr 目标地址
func (c *Client) Addr() string {
	return c.config.Addr
}

// Tag 关联的用户对象
func (c *Client) Tag() any {
	return c.tag
}

// LocalAddr 本地地址，未连接时为 nil
func (c *Client) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Open 使用配置的超时建立连接
func (c *Client) Open() error {
	return c.OpenContext(context.Background())
}

// OpenContext 建立连接并启动接收循环
// 连接失败后客户端进入关闭状态，不能再次使用。
// 拨号期间计为在途操作：Close 会取消拨号并等待 OpenContext 返回，
// 此时返回 ErrClosed。OnStateChanged(true) 回调内不能调用 Close。
func (c *Client) OpenContext(ctx context.Context) error {
	if err := c.toOpen(); err != nil {
		return err
	}
	c.begin()
	defer c.end()

	workers := c.workers
	if workers == nil {
		w, err := sharedClientWorkers()
		if err != nil {
			c.toClosed()
			return err
		}
		workers = w
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.toClosed()
		return err
	}

	c.mu.Lock()
	if !c.IsRunning() {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.loopDone = make(chan struct{})
	c.mu.Unlock()

	c.handler.OnStateChanged(c, true)

	buf := bytebuff.Get(c.config.ReadBufferSize)
	if err := workers.Submit(func() { c.receiveLoop(conn, buf.B); bytebuff.Put(buf) }); err != nil {
		bytebuff.Put(buf)
		close(c.loopDone)
		c.teardown(err)
		return errors.Wrap(err, "transport: start receive loop")
	}
	return nil
}

// dial 拨号可被 Close 取消
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancelDial = cancel
	closed := !c.IsRunning()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelDial = nil
		c.mu.Unlock()
	}()
	if closed {
		return nil, ErrClosed
	}

	dialFn := c.dialFn
	if dialFn == nil {
		d := net.Dialer{
			Timeout:   c.config.DialTimeout,
			KeepAlive: c.config.TCPKeepAlive,
		}
		dialFn = d.DialContext
	}
	conn, err := dialFn(ctx, c.config.Network, c.config.Addr)
	if err != nil {
		if !c.IsRunning() {
			return nil, ErrClosed
		}
		return nil, errors.Wrapf(errors.Mark(err, ErrDialFailed), "transport: dial %s", c.config.Addr)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(c.config.TCPNoDelay)
	}
	return conn, nil
}

func (c *Client) receiveLoop(conn net.Conn, buf []byte) {
	defer close(c.loopDone)

	var reason error
	defer func() {
		if r := recover(); r != nil {
			reason = errors.Wrapf(ErrHandlerPanic, "%v", r)
			c.logger.Error("client handler panic", "addr", c.config.Addr, "panic", r)
		}
		c.teardown(reason)
	}()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.handler.OnReceived(c, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.torn.Load() {
				reason = err
			}
			return
		}
	}
}

// BeginOperation 标记一次在途操作，Close 会等待所有操作结束
// 客户端不在运行状态时返回 false
func (c *Client) BeginOperation() bool {
	c.begin()
	if !c.IsRunning() {
		c.end()
		return false
	}
	return true
}

// EndOperation 结束一次在途操作
func (c *Client) EndOperation() {
	c.end()
}

// Send 在调用方协程同步写入
func (c *Client) Send(data []byte) error {
	if !c.BeginOperation() {
		return ErrNotRunning
	}
	defer c.EndOperation()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if _, err := conn.Write(data); err != nil {
		c.teardown(err)
		return errors.Wrapf(err, "transport: send to %s", c.config.Addr)
	}
	return nil
}

// Close 等待在途操作结束后断开连接
func (c *Client) Close() error {
	if !c.toClosed() {
		return nil
	}
	c.mu.Lock()
	if c.cancelDial != nil {
		c.cancelDial()
	}
	c.mu.Unlock()

	waitFor(func() bool { return !c.IsBusy() })
	c.teardown(nil)
	return nil
}

// Done 接收循环退出后关闭
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loopDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.loopDone
}

// teardown 关闭连接并通知状态变化，只执行一次
func (c *Client) teardown(reason error) {
	if !c.torn.CompareAndSwap(false, true) {
		return
	}
	c.toClosed()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	// 从未连上时不通知，OnStateChanged 总是成对出现
	if conn == nil {
		return
	}
	_ = conn.Close()

	if reason != nil {
		c.logger.Debug("client disconnected", "addr", c.config.Addr, "error", reason)
	}
	c.handler.OnStateChanged(c, false)
}
