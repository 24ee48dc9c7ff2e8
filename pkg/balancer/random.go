package balancer

import "math/rand/v2"

const RandomName = "random"

// randomStrategy 在可选节点中随机选择
type randomStrategy struct {
	nodes []*Node
}

func newRandom(nodes []*Node, _ StrategyOptions) (Strategy, error) {
	return &randomStrategy{nodes: nodes}, nil
}

func (s *randomStrategy) Name() string {
	return RandomName
}

func (s *randomStrategy) Select(PickInfo) (*Node, error) {
	candidates := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.Selectable() {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoAvailableNode
	}
	return candidates[rand.IntN(len(candidates))], nil
}

func (s *randomStrategy) Close() error {
	return nil
}
