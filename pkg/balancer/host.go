package balancer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/lk2023060901/xdooria-lb/pkg/transport"
)

var validate = config.NewValidator()

// HostOption Host 选项
type HostOption func(*hostOptions)

type hostOptions struct {
	logger        logger.Logger
	observer      HealthObserver
	probeInterval time.Duration
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) HostOption {
	return func(o *hostOptions) {
		o.logger = l
	}
}

// WithHealthObserver 设置节点健康状态回调
func WithHealthObserver(fn HealthObserver) HostOption {
	return func(o *hostOptions) {
		o.observer = fn
	}
}

// WithProbeInterval 覆盖 RecoveryTimes 计算出的探测间隔
func WithProbeInterval(d time.Duration) HostOption {
	return func(o *hostOptions) {
		o.probeInterval = d
	}
}

// Host 一次 Open 期间不变的节点集合与选择策略
type Host struct {
	config   HostConfig
	nodes    []*Node
	byAddr   map[string]*Node
	strategy Strategy
	rt       *nodeRuntime
	cancel   context.CancelFunc
	logger   logger.Logger
}

// NewHost 校验配置并构建节点与策略，配置错误在此同步返回
func NewHost(cfg *HostConfig, opts ...HostOption) (*Host, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := validate.Validate(cfg); err != nil {
		return nil, err
	}
	name, err := cfg.strategyName()
	if err != nil {
		return nil, err
	}
	factory, ok := lookupStrategy(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
	}

	o := &hostOptions{}
	for _, opt := range opts {
		opt(o)
	}
	l := logger.OrNoop(o.logger).Named("balancer")

	ctx, cancel := context.WithCancel(context.Background())
	rt := &nodeRuntime{
		ctx:          ctx,
		interval:     cfg.RecoveryInterval(),
		probeTimeout: probeTimeout(cfg),
		logger:       l,
		observer:     o.observer,
	}
	if o.probeInterval > 0 {
		rt.interval = o.probeInterval
	}

	h := &Host{
		config: *cfg,
		byAddr: make(map[string]*Node, len(cfg.Nodes)),
		rt:     rt,
		cancel: cancel,
		logger: l,
	}
	for _, nc := range cfg.Nodes {
		n := newNode(nc, rt)
		if _, dup := h.byAddr[n.Endpoint()]; dup {
			cancel()
			return nil, errors.Wrapf(ErrInvalidConfig, "duplicate node %s", n.Endpoint())
		}
		h.nodes = append(h.nodes, n)
		h.byAddr[n.Endpoint()] = n
	}

	h.strategy, err = factory(h.nodes, StrategyOptions{
		ExtendData: cfg.ExtendData,
		Logger:     l,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "build strategy %q", name)
	}

	l.Info("host created",
		"endpoint", cfg.Endpoint,
		"strategy", h.strategy.Name(),
		"nodes", len(h.nodes),
	)
	return h, nil
}

// Endpoint 对外监听地址
func (h *Host) Endpoint() string {
	return h.config.Endpoint
}

// DialTimeout 连接后端的超时，0 表示不限制
func (h *Host) DialTimeout() time.Duration {
	return h.config.DialTimeout()
}

// Nodes 返回节点列表
func (h *Host) Nodes() []*Node {
	return h.nodes
}

// Node 按地址查找节点
func (h *Host) Node(endpoint string) (*Node, bool) {
	n, ok := h.byAddr[endpoint]
	return n, ok
}

// Strategy 返回选择策略
func (h *Host) Strategy() Strategy {
	return h.strategy
}

// Select 选择一个可用节点
func (h *Host) Select(info PickInfo) (*Node, error) {
	return h.strategy.Select(info)
}

// Close 停止所有恢复协程并释放策略
func (h *Host) Close() error {
	h.cancel()
	h.rt.wg.Wait()
	return h.strategy.Close()
}

// probeTimeout 探测拨号必须有上限，未配置超时时使用传输层默认值
func probeTimeout(cfg *HostConfig) time.Duration {
	if d := cfg.DialTimeout(); d > 0 {
		return d
	}
	return transport.DefaultDialTimeout
}
