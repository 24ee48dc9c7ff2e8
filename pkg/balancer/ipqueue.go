package balancer

import (
	"sync"
	"time"

	"github.com/lk2023060901/xdooria-lb/pkg/cache/lru"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"github.com/lk2023060901/xdooria-lb/pkg/xsync"
)

const IPQueueName = "ipqueue"

const (
	defaultAffinity = 60 * time.Second
	minAffinity     = 10 * time.Second

	// 会话模式下重新选择的次数上限，超过后直接走 Queue
	maxStickyRetries = 3
)

// ipQueueOptions 从 ExtendData 解码
type ipQueueOptions struct {
	AffinitySeconds int `mapstructure:"affinity_seconds"`
	MaxEntries      int `mapstructure:"affinity_max_entries"`
}

// stickyEntry 会话模式下一个 IP 的选择结果，由首个请求计算
type stickyEntry struct {
	once sync.Once
	node *Node
	err  error
}

// IPQueue 按客户端 IP 粘滞的加权轮询
//
// 两种模式互斥：
//   - 会话模式（默认）：同一 IP 一直使用首次选出的节点，直到节点不可选
//   - 过期模式（ExtendData 设置 affinity_seconds）：亲和关系在窗口结束后失效
//
// 两种模式下缓存的节点在复用前都会检查是否仍然可选。
type IPQueue struct {
	queue  *Queue
	sticky *xsync.Map[uint32, *stickyEntry]
	cache  *lru.LRU[uint32, *Node]
}

// NewIPQueue 创建会话模式的 IPQueue
func NewIPQueue(nodes []*Node) *IPQueue {
	return &IPQueue{
		queue:  NewQueue(nodes),
		sticky: xsync.NewMap[uint32, *stickyEntry](),
	}
}

// NewIPQueueWithAffinity 创建过期模式的 IPQueue
func NewIPQueueWithAffinity(nodes []*Node, affinity time.Duration, maxEntries int) *IPQueue {
	cfg := lru.DefaultConfig()
	cfg.DefaultTTL = affinity
	if maxEntries > 0 {
		cfg.MaxSize = maxEntries
	}
	return &IPQueue{
		queue: NewQueue(nodes),
		cache: lru.New[uint32, *Node](cfg),
	}
}

func newIPQueueStrategy(nodes []*Node, opts StrategyOptions) (Strategy, error) {
	if _, ok := opts.ExtendData[ExtendKeyAffinitySeconds]; !ok {
		return NewIPQueue(nodes), nil
	}

	var o ipQueueOptions
	if err := config.DecodeMap(opts.ExtendData, &o); err != nil {
		return nil, err
	}
	return NewIPQueueWithAffinity(nodes, affinityWindow(o.AffinitySeconds), o.MaxEntries), nil
}

// affinityWindow 未设置时取默认值，过小时提升到下限
func affinityWindow(seconds int) time.Duration {
	affinity := time.Duration(seconds) * time.Second
	switch {
	case affinity <= 0:
		return defaultAffinity
	case affinity < minAffinity:
		return minAffinity
	}
	return affinity
}

// Name 实现 Strategy
func (q *IPQueue) Name() string {
	return IPQueueName
}

// Select 实现 Strategy
func (q *IPQueue) Select(info PickInfo) (*Node, error) {
	key, ok := IPKey(info.RemoteAddr)
	if !ok {
		return q.queue.Select(info)
	}

	if q.cache != nil {
		return q.cache.GetOrCompute(key, (*Node).Selectable, func() (*Node, error) {
			return q.queue.Select(info)
		})
	}

	for i := 0; i < maxStickyRetries; i++ {
		e, loaded := q.sticky.Load(key)
		if !loaded {
			e, _ = q.sticky.LoadOrStore(key, &stickyEntry{})
		}
		e.once.Do(func() {
			e.node, e.err = q.queue.Select(info)
		})

		if e.err != nil {
			q.sticky.CompareAndDelete(key, e)
			return nil, e.err
		}
		if e.node.Selectable() {
			return e.node, nil
		}
		// 节点已失败或被禁用，淘汰后重新选择
		q.sticky.CompareAndDelete(key, e)
	}
	return q.queue.Select(info)
}

// Len 当前缓存的 IP 数量
func (q *IPQueue) Len() int {
	if q.cache != nil {
		return q.cache.Len()
	}
	return q.sticky.Len()
}

// Close 实现 Strategy
func (q *IPQueue) Close() error {
	if q.cache != nil {
		return q.cache.Close()
	}
	q.sticky.Clear()
	return nil
}
