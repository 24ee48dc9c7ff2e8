package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAppAlreadyRunning = errors.New("app: application is already running")
)

// Application 定义了应用的接口
type Application interface {
	Run() error
	Shutdown() error
	AppLogger() logger.Logger
}

// Server 定义了服务接口
type Server interface {
	Start() error
	Stop() error
}

// Closer 定义了资源清理接口
type Closer interface {
	Close() error
}

// Lifecycle 以 Open/Close 管理生命周期的组件
type Lifecycle interface {
	Open() error
	Close() error
}

// AsServer 将 Open/Close 组件适配为 Server
func AsServer(l Lifecycle) Server {
	return lifecycleServer{l}
}

type lifecycleServer struct {
	l Lifecycle
}

func (s lifecycleServer) Start() error { return s.l.Open() }
func (s lifecycleServer) Stop() error  { return s.l.Close() }

// CloserFunc 将函数适配为 Closer
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// BaseApp 提供了 Application 接口的基础实现
type BaseApp struct {
	opts    Options
	logger  logger.Logger
	servers []Server
	closers []Closer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex

	// 状态管理
	started atomic.Bool
	closed  atomic.Bool
}

// NewBaseApp 创建一个新的 BaseApp 实例
func NewBaseApp(opts ...Option) *BaseApp {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &BaseApp{
		opts:   o,
		logger: logger.OrNoop(o.Logger).Named(o.Name),
		ctx:    ctx,
		cancel: cancel,
	}
	return a
}

// ID 应用实例 ID
func (a *BaseApp) ID() string {
	return a.opts.ID
}

// Context 应用关闭时取消
func (a *BaseApp) Context() context.Context {
	return a.ctx
}

// SetAppLogger 替换应用主日志对象
func (a *BaseApp) SetAppLogger(l logger.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = logger.OrNoop(l)
}

// AppLogger 获取应用主日志对象
func (a *BaseApp) AppLogger() logger.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}

// Start 依次启动所有服务，任一失败时停止已启动的服务
func (a *BaseApp) Start() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAppAlreadyRunning
	}

	info := GetInfo()
	a.logger.Info("application starting",
		"name", info.AppName,
		"version", info.Version,
		"commit", info.GitCommit,
		"build_date", info.BuildDate,
		"go_version", info.GoVersion,
		"id", a.opts.ID,
	)

	a.mu.RLock()
	servers := append([]Server(nil), a.servers...)
	a.mu.RUnlock()

	for i, srv := range servers {
		if err := srv.Start(); err != nil {
			a.logger.Error("failed to start server", "error", err)
			for j := i - 1; j >= 0; j-- {
				_ = servers[j].Stop()
			}
			return errors.Wrap(err, "app: start server")
		}
	}
	return nil
}

// Run 启动应用程序并阻塞到收到退出信号
func (a *BaseApp) Run() error {
	fmt.Println(GetInfo().String())

	if err := a.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-a.ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	return a.Shutdown()
}

// Shutdown 停止应用程序并清理资源
func (a *BaseApp) Shutdown() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancel()
	a.logger.Info("application shutting down")

	// 并发停止所有服务器
	var g errgroup.Group
	for _, srv := range a.servers {
		g.Go(func() error {
			if err := srv.Stop(); err != nil {
				a.logger.Error("failed to stop server", "error", err)
				return err
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	var stopErr error
	select {
	case stopErr = <-done:
		a.logger.Info("all servers stopped")
	case <-time.After(a.opts.StopTimeout):
		stopErr = errors.Newf("app: shutdown timed out after %s", a.opts.StopTimeout)
		a.logger.Warn("shutdown timeout, forcing exit")
	}

	// 逆序关闭所有 Closer 组件（LIFO）
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("failed to close component", "error", err)
		}
	}

	a.logger.Info("application exited")
	_ = a.logger.Sync()
	return stopErr
}

// AppendServer 添加服务器
func (a *BaseApp) AppendServer(srv ...Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, srv...)
}

// AppendCloser 添加资源清理组件
func (a *BaseApp) AppendCloser(closer ...Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer...)
}
