package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/arena"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/lk2023060901/xdooria-lb/pkg/pool"
	"github.com/lk2023060901/xdooria-lb/pkg/xsync"
	"golang.org/x/sync/semaphore"
)

const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// ServerOption 服务端选项
type ServerOption func(*Server)

// WithServerLogger 设置日志
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.OrNoop(l)
	}
}

// WithServerHandler 设置事件回调
func WithServerHandler(h ServerHandler) ServerOption {
	return func(s *Server) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithServerWorkers 使用外部协程池，Close 时不会释放它
// 池容量应不小于 MaxConnectionCount
func WithServerWorkers(w *WorkerPool) ServerOption {
	return func(s *Server) {
		s.workers = w
	}
}

// ServerStats 服务端统计
type ServerStats struct {
	Accepted  uint64
	Rejected  uint64
	Active    int
	ArenaUsed int
	OpsInUse  int
	BytesSent uint64
}

// Server 异步 TCP 服务端
//
// 每个连接占用一个准入许可和一个接收窗口。许可耗尽时接入循环阻塞在信号量上，
// 直到有连接断开；新连接留在内核队列中等待。
type Server struct {
	lifecycle

	config  *ServerConfig
	handler ServerHandler
	logger  logger.Logger
	warn    *logger.Throttled

	listener    net.Listener
	admission   *semaphore.Weighted
	admitCtx    context.Context
	admitCancel context.CancelFunc
	arena       *arena.Arena
	clientPool  *pool.Pool[*AcceptedClient]
	ops         *OpTable
	clients     *xsync.Map[ConnID, *AcceptedClient]
	workers     *WorkerPool
	ownWorkers  bool
	acceptDone  chan struct{}
	nextID      atomic.Uint64
	accepted    atomic.Uint64
	rejected    atomic.Uint64
	bytesSent   atomic.Uint64
}

// NewServer 创建服务端
func NewServer(cfg *ServerConfig, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	c := *cfg
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:  &c,
		handler: NopServerHandler{},
		logger:  logger.NewNoop(),
		clients: xsync.NewMap[ConnID, *AcceptedClient](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("transport.server")
	s.warn = logger.NewThrottled(s.logger, time.Second, 5)
	return s, nil
}

// Config 返回生效的配置
func (s *Server) Config() ServerConfig {
	return *s.config
}

// Open 开始监听并进入接入循环
func (s *Server) Open() error {
	if err := s.toOpen(); err != nil {
		return err
	}
	if err := s.setup(); err != nil {
		s.rollbackOpen()
		return err
	}

	s.acceptDone = make(chan struct{})
	go s.acceptLoop()

	s.logger.Info("server opened",
		"addr", s.listener.Addr().String(),
		"max_connections", s.config.MaxConnectionCount,
		"buffer_size", s.config.MaxBufferSize,
	)
	return nil
}

func (s *Server) setup() error {
	cfg := s.config

	// 接入中的连接在等待许可前已经占用窗口，多留一个
	a, err := arena.New(cfg.MaxBufferSize, cfg.MaxConnectionCount+1)
	if err != nil {
		return err
	}

	if s.workers == nil {
		w, err := NewWorkerPool(cfg.MaxConnectionCount, s.logger)
		if err != nil {
			return err
		}
		s.workers = w
		s.ownWorkers = true
	}

	lc := net.ListenConfig{KeepAlive: cfg.TCPKeepAlive}
	ln, err := lc.Listen(context.Background(), cfg.Network, cfg.Addr)
	if err != nil {
		if s.ownWorkers {
			s.workers.Release()
			s.workers = nil
			s.ownWorkers = false
		}
		return errors.Wrapf(err, "transport: listen %s", cfg.Addr)
	}

	s.listener = ln
	s.arena = a
	s.admission = semaphore.NewWeighted(int64(cfg.MaxConnectionCount))
	s.admitCtx, s.admitCancel = context.WithCancel(context.Background())
	s.ops = NewOpTable(cfg.ListenBacklog)
	s.clientPool = pool.New(newAcceptedClient,
		pool.WithReset(func(c *AcceptedClient) { c.reset() }),
		pool.WithPrealloc[*AcceptedClient](cfg.ListenBacklog),
	)
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.IsRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = acceptBackoffMin
			} else {
				delay = min(delay*2, acceptBackoffMax)
			}
			s.warn.Warn("accept error, retrying", "error", err, "delay", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.accept(conn)
	}
}

// accept 处理一个新连接，许可耗尽时在此阻塞
func (s *Server) accept(conn net.Conn) {
	if conn == nil {
		s.rejected.Add(1)
		return
	}

	s.begin()
	defer s.end()

	if !s.IsRunning() {
		s.rejected.Add(1)
		_ = conn.Close()
		return
	}

	c := s.clientPool.Acquire()
	h := s.ops.Acquire(OpAccept, 0)

	w, err := s.arena.Assign()
	if err != nil {
		s.rejected.Add(1)
		s.warn.Warn("no receive window available, dropping connection", "remote", conn.RemoteAddr().String())
		_ = conn.Close()
		s.discard(c, h)
		return
	}

	if err := s.admission.Acquire(s.admitCtx, 1); err != nil {
		s.rejected.Add(1)
		_ = conn.Close()
		_ = s.arena.Free(w)
		s.discard(c, h)
		return
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(s.config.TCPNoDelay)
	}

	id := ConnID(s.nextID.Add(1))
	c.attach(id, conn, w, h)
	if op, err := s.ops.Get(h); err == nil {
		op.Kind = OpReceive
		op.Conn = id
		op.Window = w
		op.Done = func(n int, err error) { s.received(c, w, n, err) }
	}

	s.clients.Store(id, c)
	s.accepted.Add(1)

	s.begin()
	if err := s.workers.Submit(func() { s.serve(c) }); err != nil {
		s.end()
		c.markClosing(err)
		s.finish(c, err)
	}
}

func (s *Server) discard(c *AcceptedClient, h OpHandle) {
	if err := s.ops.Release(h); err != nil {
		s.logger.Error("release op context", "error", err)
	}
	s.clientPool.Release(c)
}

// serve 连接的接收循环，同一时刻只有一个接收在途
func (s *Server) serve(c *AcceptedClient) {
	defer s.end()

	var reason error
	defer func() {
		if r := recover(); r != nil {
			reason = errors.Wrapf(ErrHandlerPanic, "%v", r)
			s.logger.Error("handler panic, closing connection", "conn", c.ID(), "panic", fmt.Sprint(r))
			c.markClosing(reason)
		}
		s.finish(c, reason)
	}()

	s.handler.OnConnected(c)

	op, err := s.ops.Get(c.op)
	if err != nil {
		reason = err
		c.markClosing(err)
		return
	}
	buf := op.Window.Bytes()
	for !c.closing.Load() {
		n, err := c.conn.Read(buf)
		op.Done(n, err)
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.closing.Load() {
				reason = err
			}
			c.markClosing(reason)
			return
		}
	}
}

// received 接收完成
func (s *Server) received(c *AcceptedClient, w arena.Window, n int, err error) {
	if n > 0 {
		s.handler.OnReceived(c, w.Bytes()[:n])
	}
	if err != nil && !errors.Is(err, io.EOF) && !c.closing.Load() {
		s.logger.Debug("receive failed", "conn", c.ID(), "error", err)
	}
}

// finish 回收连接占用的资源，每个连接只执行一次
func (s *Server) finish(c *AcceptedClient, reason error) {
	if !c.finished.CompareAndSwap(false, true) {
		return
	}
	if r := c.closeReason(); r != nil {
		reason = r
	}

	if h, err := s.ops.Get(c.op); err == nil {
		h.Kind = OpShutdown
	}
	if err := s.arena.Free(c.window); err != nil {
		s.logger.Error("free receive window", "conn", c.ID(), "error", err)
	}
	s.admission.Release(1)
	s.clients.Delete(c.ID())

	s.handler.OnDisconnected(c, reason)

	// 等待正在发送的调用方离开后再复用对象
	waitFor(func() bool { return !c.IsBusy() })

	if err := s.ops.Release(c.op); err != nil {
		s.logger.Error("release op context", "conn", c.ID(), "error", err)
	}
	s.clientPool.Release(c)
}

// Send 向连接发送数据，写入在调用方协程同步完成
func (s *Server) Send(id ConnID, data []byte) error {
	return s.write(id, func(conn net.Conn) (int64, error) {
		n, err := conn.Write(data)
		return int64(n), err
	})
}

// SendPackets 以一次 writev 发送多段数据
func (s *Server) SendPackets(id ConnID, packets [][]byte) error {
	return s.write(id, func(conn net.Conn) (int64, error) {
		bufs := net.Buffers(packets)
		return bufs.WriteTo(conn)
	})
}

func (s *Server) write(id ConnID, fn func(net.Conn) (int64, error)) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	c, ok := s.clients.Load(id)
	if !ok || !c.acquire(id) {
		return errors.Wrapf(ErrClientNotFound, "conn %d", id)
	}
	defer c.release()

	s.begin()
	defer s.end()

	h := s.ops.Acquire(OpSend, id)
	defer func() {
		_ = s.ops.Release(h)
	}()
	op, err := s.ops.Get(h)
	if err != nil {
		return err
	}
	var sendErr error
	op.Done = func(n int, err error) {
		s.bytesSent.Add(uint64(n))
		if err != nil {
			c.markClosing(err)
			sendErr = errors.Wrapf(err, "transport: send to conn %d", id)
		}
	}

	n, err := fn(c.conn)
	op.Done(int(n), err)
	return sendErr
}

// Client 按编号查找连接
func (s *Server) Client(id ConnID) (*AcceptedClient, bool) {
	c, ok := s.clients.Load(id)
	if !ok || c.ID() != id {
		return nil, false
	}
	return c, true
}

// Clients 返回当前所有连接的快照
func (s *Server) Clients() []*AcceptedClient {
	list := make([]*AcceptedClient, 0, s.clients.Len())
	s.clients.Range(func(_ ConnID, c *AcceptedClient) bool {
		list = append(list, c)
		return true
	})
	return list
}

// ClientCount 当前连接数
func (s *Server) ClientCount() int {
	return s.clients.Len()
}

// Disconnect 主动断开连接，OnDisconnected 的 err 为 nil
func (s *Server) Disconnect(id ConnID) error {
	c, ok := s.clients.Load(id)
	if !ok || !c.acquire(id) {
		return errors.Wrapf(ErrClientNotFound, "conn %d", id)
	}
	// 持有期间 finish 不会复用该对象
	defer c.release()
	c.markClosing(nil)
	return nil
}

// Stats 返回统计信息
func (s *Server) Stats() ServerStats {
	st := ServerStats{
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Active:    s.clients.Len(),
		BytesSent: s.bytesSent.Load(),
	}
	if s.arena != nil {
		st.ArenaUsed = s.arena.Stats().InUse
	}
	if s.ops != nil {
		st.OpsInUse = s.ops.InUse()
	}
	return st
}

// Close 停止接入并断开所有连接，返回时不会再有回调触发
func (s *Server) Close() error {
	if !s.toClosed() {
		return nil
	}

	s.admitCancel()
	_ = s.listener.Close()
	<-s.acceptDone

	s.clients.Range(func(_ ConnID, c *AcceptedClient) bool {
		c.markClosing(ErrClosed)
		return true
	})
	waitFor(func() bool { return !s.IsBusy() && s.clients.Len() == 0 })

	if s.ownWorkers {
		s.workers.Release()
	}
	s.clientPool.Dispose()

	s.logger.Info("server closed", "accepted", s.accepted.Load(), "rejected", s.rejected.Load())
	return nil
}
