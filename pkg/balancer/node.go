package balancer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"go.uber.org/atomic"
)

// HealthObserver 节点健康状态变化时调用
type HealthObserver func(n *Node, healthy bool)

// nodeRuntime 同一 Host 下所有节点共享的运行时
type nodeRuntime struct {
	ctx          context.Context
	wg           sync.WaitGroup
	interval     time.Duration
	probeTimeout time.Duration
	logger       logger.Logger
	observer     HealthObserver
}

// NodeStatus 节点状态快照
type NodeStatus struct {
	Endpoint     string
	Weight       int
	Enabled      bool
	Failed       bool
	LastFailure  time.Time
	FailureCount int64
	LastError    string
}

// Node 后端节点
//
// 可选条件为 enabled && !failed。连接失败时 ToFailed 将节点标记为失败并启动
// 唯一一个恢复协程，恢复协程按间隔探测，连通后清除失败标记并退出。
type Node struct {
	endpoint string
	weight   int
	rt       *nodeRuntime

	enabled  atomic.Bool
	failed   atomic.Bool
	failures atomic.Int64

	mu          sync.Mutex
	lastFailure time.Time
	lastError   string
}

func newNode(cfg NodeConfig, rt *nodeRuntime) *Node {
	weight := cfg.Weight
	if weight < 1 {
		weight = 1
	}
	n := &Node{
		endpoint: cfg.Endpoint(),
		weight:   weight,
		rt:       rt,
	}
	n.enabled.Store(!cfg.Disabled)
	return n
}

// Endpoint 节点地址 host:port
func (n *Node) Endpoint() string {
	return n.endpoint
}

// Weight 权重，最小为 1
func (n *Node) Weight() int {
	return n.weight
}

// Selectable 是否可被选择
func (n *Node) Selectable() bool {
	return n.enabled.Load() && !n.failed.Load()
}

// IsEnabled 是否启用
func (n *Node) IsEnabled() bool {
	return n.enabled.Load()
}

// IsFailed 是否处于失败状态
func (n *Node) IsFailed() bool {
	return n.failed.Load()
}

// SetEnabled 启用或禁用节点，与健康状态相互独立
func (n *Node) SetEnabled(enabled bool) {
	if n.enabled.Swap(enabled) != enabled {
		n.rt.logger.Info("node enabled state changed", "node", n.endpoint, "enabled", enabled)
	}
}

// ToFailed 记录一次连接失败，节点从健康转为失败时启动恢复协程
func (n *Node) ToFailed(err error) {
	n.mu.Lock()
	n.record(err)
	if !n.failed.CAS(false, true) {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	n.rt.logger.Warn("node marked failed", "node", n.endpoint, "error", err)
	if n.rt.observer != nil {
		n.rt.observer(n, false)
	}

	n.rt.wg.Add(1)
	go n.recoveryLoop()
}

// record 更新失败记录，调用方持有 n.mu
func (n *Node) record(err error) {
	n.lastFailure = time.Now()
	n.failures.Inc()
	if err != nil {
		n.lastError = err.Error()
	}
}

// Status 返回状态快照
func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	return NodeStatus{
		Endpoint:     n.endpoint,
		Weight:       n.weight,
		Enabled:      n.enabled.Load(),
		Failed:       n.failed.Load(),
		LastFailure:  n.lastFailure,
		FailureCount: n.failures.Load(),
		LastError:    n.lastError,
	}
}

// recoveryLoop 定期探测失败节点，直到探测成功或 Host 关闭
func (n *Node) recoveryLoop() {
	defer n.rt.wg.Done()

	timer := time.NewTimer(n.rt.interval)
	defer timer.Stop()

	d := net.Dialer{Timeout: n.rt.probeTimeout}
	for {
		select {
		case <-n.rt.ctx.Done():
			return
		case <-timer.C:
		}

		conn, err := d.DialContext(n.rt.ctx, "tcp", n.endpoint)
		if err == nil {
			_ = conn.Close()

			n.mu.Lock()
			n.failed.Store(false)
			n.mu.Unlock()

			n.rt.logger.Info("node recovered", "node", n.endpoint)
			if n.rt.observer != nil {
				n.rt.observer(n, true)
			}
			return
		}
		if n.rt.ctx.Err() != nil {
			return
		}

		n.mu.Lock()
		n.record(err)
		n.mu.Unlock()
		n.rt.logger.Debug("node probe failed", "node", n.endpoint, "error", err)

		timer.Reset(n.rt.interval)
	}
}
