package balancer

import "sync"

const WeightedName = "weighted"

// weightedStrategy 实现平滑加权轮询算法（Smooth Weighted Round-Robin）
// 算法说明：
// 1. 每次选择时，所有可选节点的 currentWeight += weight
// 2. 选择 currentWeight 最大的节点
// 3. 被选中节点的 currentWeight -= totalWeight
//
// 示例：节点 A(weight=5), B(weight=1), C(weight=1)
// 选择序列：A A B A C A A（7次选择中，A被选5次，B和C各1次）
type weightedStrategy struct {
	nodes []*Node

	mu      sync.Mutex
	current map[*Node]int
}

func newWeighted(nodes []*Node, _ StrategyOptions) (Strategy, error) {
	return &weightedStrategy{
		nodes:   nodes,
		current: make(map[*Node]int, len(nodes)),
	}, nil
}

func (s *weightedStrategy) Name() string {
	return WeightedName
}

func (s *weightedStrategy) Select(PickInfo) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalWeight := 0
	var best *Node
	for _, n := range s.nodes {
		if !n.Selectable() {
			continue
		}
		totalWeight += n.Weight()
		s.current[n] += n.Weight()
		if best == nil || s.current[n] > s.current[best] {
			best = n
		}
	}
	if best == nil {
		return nil, ErrNoAvailableNode
	}

	s.current[best] -= totalWeight
	return best, nil
}

func (s *weightedStrategy) Close() error {
	return nil
}
