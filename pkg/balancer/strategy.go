package balancer

import (
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/lk2023060901/xdooria-lb/pkg/logger"
)

// PickInfo 选择时的上下文信息
type PickInfo struct {
	// RemoteAddr 入站客户端地址
	RemoteAddr net.Addr
}

// Strategy 节点选择策略，实例归属于一个 Host
type Strategy interface {
	// Name 策略名
	Name() string
	// Select 返回一个可选节点，没有时返回 ErrNoAvailableNode
	Select(info PickInfo) (*Node, error)
	// Close 释放策略持有的资源
	Close() error
}

// StrategyOptions 构建策略的参数
type StrategyOptions struct {
	ExtendData map[string]any
	Logger     logger.Logger
}

// Factory 策略构造函数
type Factory func(nodes []*Node, opts StrategyOptions) (Strategy, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

func init() {
	// 注册内置策略
	RegisterStrategy(QueueName, newQueueStrategy)
	RegisterStrategy(IPQueueName, newIPQueueStrategy)
	RegisterStrategy(RandomName, newRandom)
	RegisterStrategy(WeightedName, newWeighted)
	RegisterStrategy(ConsistentHashName, newConsistentHash)
}

// RegisterStrategy 注册策略，名称不区分大小写，重复注册会覆盖
func RegisterStrategy(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(name)] = f
}

// lookupStrategy 查找策略构造函数
func lookupStrategy(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[strings.ToLower(name)]
	return f, ok
}

// Strategies 返回已注册的策略名
func Strategies() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
