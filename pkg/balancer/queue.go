package balancer

import (
	"sort"
	"sync"
)

const QueueName = "queue"

// Queue 加权轮询
//
// 节点按权重降序稳定排序后，每个节点连续放入环形列表 weight 次。
// 示例：A(weight=1), B(weight=3) 展开为 [B B B A]，四次选择依次返回 B B B A。
// 选择从共享游标开始最多扫描一圈，返回第一个可选节点，游标移到其后一位。
type Queue struct {
	mu     sync.Mutex
	list   []*Node
	cursor int
}

// NewQueue 创建加权轮询策略
func NewQueue(nodes []*Node) *Queue {
	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight() > sorted[j].Weight()
	})

	total := 0
	for _, n := range sorted {
		total += n.Weight()
	}
	list := make([]*Node, 0, total)
	for _, n := range sorted {
		for i := 0; i < n.Weight(); i++ {
			list = append(list, n)
		}
	}
	return &Queue{list: list}
}

func newQueueStrategy(nodes []*Node, _ StrategyOptions) (Strategy, error) {
	return NewQueue(nodes), nil
}

// Name 实现 Strategy
func (q *Queue) Name() string {
	return QueueName
}

// Select 实现 Strategy
func (q *Queue) Select(PickInfo) (*Node, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.list)
	for i := 0; i < n; i++ {
		idx := (q.cursor + i) % n
		if node := q.list[idx]; node.Selectable() {
			q.cursor = (idx + 1) % n
			return node, nil
		}
	}
	return nil, ErrNoAvailableNode
}

// Close 实现 Strategy
func (q *Queue) Close() error {
	return nil
}
