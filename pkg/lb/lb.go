package lb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/lk2023060901/xdooria-lb/pkg/prometheus"
	"github.com/lk2023060901/xdooria-lb/pkg/transport"
)

// Option 负载均衡器选项
type Option func(*options)

type options struct {
	logger        logger.Logger
	metrics       *prometheus.Client
	probeInterval time.Duration
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics 在指定的 Prometheus 客户端上注册指标
func WithMetrics(c *prometheus.Client) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithProbeInterval 覆盖失败节点的探测间隔，主要用于测试
func WithProbeInterval(d time.Duration) Option {
	return func(o *options) {
		o.probeInterval = d
	}
}

const (
	stateIdle int32 = iota
	stateOpen
	stateClosed
)

// pair 一条入站连接与其后端连接
type pair struct {
	node    *balancer.Node
	backend *transport.Client
}

// Balancer TCP 负载均衡器
//
// 每条入站连接在自己的接收协程上选择节点并连接后端，之后两个方向各由一个
// 接收循环单独转发，任一方向关闭都会拆除整对连接。
type Balancer struct {
	id      string
	config  *Config
	opts    options
	logger  logger.Logger
	warn    *logger.Throttled
	metrics *metrics

	state  atomic.Int32
	lifeMu sync.Mutex
	mu     sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	host    *balancer.Host
	server  *transport.Server
	workers *transport.WorkerPool
}

// New 创建负载均衡器，未设置的配置项使用默认值
func New(cfg *Config, opts ...Option) (*Balancer, error) {
	c, err := mergeDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newMetrics(o.metrics)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	l := logger.OrNoop(o.logger).Named("lb").WithFields("balancer", id)
	return &Balancer{
		id:      id,
		config:  c,
		opts:    o,
		logger:  l,
		warn:    logger.NewThrottled(l, time.Second, 5),
		metrics: m,
	}, nil
}

// ID 实例编号
func (b *Balancer) ID() string {
	return b.id
}

// Config 返回生效的配置
func (b *Balancer) Config() Config {
	return *b.config
}

// Open 构建节点集合并开始监听，配置错误在此同步返回
func (b *Balancer) Open() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if !b.state.CompareAndSwap(stateIdle, stateOpen) {
		if b.state.Load() == stateClosed {
			return ErrClosed
		}
		return ErrAlreadyOpen
	}
	if err := b.setup(); err != nil {
		b.state.Store(stateIdle)
		return err
	}
	b.logger.Info("balancer started",
		"addr", b.server.Addr().String(),
		"strategy", b.host.Strategy().Name(),
		"nodes", len(b.host.Nodes()),
	)
	return nil
}

func (b *Balancer) setup() error {
	hostOpts := []balancer.HostOption{
		balancer.WithLogger(b.logger),
		balancer.WithHealthObserver(b.metrics.nodeHealth),
	}
	if b.opts.probeInterval > 0 {
		hostOpts = append(hostOpts, balancer.WithProbeInterval(b.opts.probeInterval))
	}
	host, err := balancer.NewHost(b.config.HostConfig(), hostOpts...)
	if err != nil {
		return errors.Wrap(err, "lb: build host")
	}

	workers, err := transport.NewWorkerPool(b.config.MaxConnectionCount, b.logger)
	if err != nil {
		_ = host.Close()
		return err
	}

	server, err := transport.NewServer(b.config.ServerConfig(),
		transport.WithServerLogger(b.logger),
		transport.WithServerHandler(b),
	)
	if err != nil {
		workers.Release()
		_ = host.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.ctx, b.cancel = ctx, cancel
	b.host, b.server, b.workers = host, server, workers
	b.mu.Unlock()

	for _, n := range host.Nodes() {
		b.metrics.nodeHealth(n, n.Selectable())
	}

	if err := server.Open(); err != nil {
		cancel()
		workers.Release()
		_ = host.Close()
		return errors.Wrap(err, "lb: open server")
	}
	return nil
}

// Close 断开所有连接对并停止节点探测，关闭后不能再次打开
func (b *Balancer) Close() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.state.Swap(stateClosed) != stateOpen {
		return nil
	}

	b.cancel()
	err := b.server.Close()
	b.workers.Release()
	if herr := b.host.Close(); herr != nil {
		err = errors.CombineErrors(err, herr)
	}

	st := b.server.Stats()
	b.logger.Info("balancer stopped", "accepted", st.Accepted, "rejected", st.Rejected)
	return err
}

// IsRunning 是否处于打开状态
func (b *Balancer) IsRunning() bool {
	return b.state.Load() == stateOpen
}

// Server 入站服务端，未打开时为 nil
func (b *Balancer) Server() *transport.Server {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.server
}

// Host 当前节点集合，未打开时为 nil
func (b *Balancer) Host() *balancer.Host {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.host
}

// ClientCount 当前入站连接数
func (b *Balancer) ClientCount() int {
	if s := b.Server(); s != nil {
		return s.ClientCount()
	}
	return 0
}

// Nodes 节点状态快照
func (b *Balancer) Nodes() []balancer.NodeStatus {
	h := b.Host()
	if h == nil {
		return nil
	}
	nodes := h.Nodes()
	list := make([]balancer.NodeStatus, 0, len(nodes))
	for _, n := range nodes {
		list = append(list, n.Status())
	}
	return list
}

// Health 未打开返回 ErrNotOpen，没有可选节点返回 balancer.ErrNoAvailableNode
func (b *Balancer) Health() error {
	if !b.IsRunning() {
		return ErrNotOpen
	}
	h := b.Host()
	if h == nil {
		return ErrNotOpen
	}
	for _, n := range h.Nodes() {
		if n.Selectable() {
			return nil
		}
	}
	return balancer.ErrNoAvailableNode
}

// SetNodeEnabled 启用或禁用节点
func (b *Balancer) SetNodeEnabled(endpoint string, enabled bool) error {
	if err := validate.ValidateField(endpoint, "endpoint"); err != nil {
		return err
	}
	h := b.Host()
	if h == nil {
		return ErrNotOpen
	}
	n, ok := h.Node(endpoint)
	if !ok {
		return errors.Wrapf(balancer.ErrNodeNotFound, "%s", endpoint)
	}
	n.SetEnabled(enabled)
	b.metrics.nodeHealth(n, n.Selectable())
	return nil
}
