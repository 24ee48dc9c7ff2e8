package balancer

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
)

const ConsistentHashName = "consistent_hash"

const defaultVirtualNodes = 150

type consistentHashOptions struct {
	VirtualNodes int `mapstructure:"virtual_nodes"`
}

// consistentHashStrategy 按客户端 IP 在哈希环上选择节点
// 命中的节点不可选时沿环顺时针查找下一个可选节点
type consistentHashStrategy struct {
	hashes []uint64
	owners []*Node
}

func newConsistentHash(nodes []*Node, opts StrategyOptions) (Strategy, error) {
	o := consistentHashOptions{VirtualNodes: defaultVirtualNodes}
	if err := config.DecodeMap(opts.ExtendData, &o); err != nil {
		return nil, err
	}
	if o.VirtualNodes <= 0 {
		o.VirtualNodes = defaultVirtualNodes
	}

	type point struct {
		hash uint64
		node *Node
	}
	points := make([]point, 0, len(nodes)*o.VirtualNodes)
	for _, n := range nodes {
		for i := 0; i < o.VirtualNodes; i++ {
			virtualKey := n.Endpoint() + "#" + strconv.Itoa(i)
			points = append(points, point{hash: xxhash.Sum64String(virtualKey), node: n})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].hash < points[j].hash
	})

	s := &consistentHashStrategy{
		hashes: make([]uint64, len(points)),
		owners: make([]*Node, len(points)),
	}
	for i, p := range points {
		s.hashes[i] = p.hash
		s.owners[i] = p.node
	}
	return s, nil
}

func (s *consistentHashStrategy) Name() string {
	return ConsistentHashName
}

func (s *consistentHashStrategy) Select(info PickInfo) (*Node, error) {
	if len(s.hashes) == 0 {
		return nil, ErrNoAvailableNode
	}

	var hash uint64
	if key, ok := IPKey(info.RemoteAddr); ok {
		var b [4]byte
		b[0], b[1], b[2], b[3] = byte(key>>24), byte(key>>16), byte(key>>8), byte(key)
		hash = xxhash.Sum64(b[:])
	}

	// 二分查找第一个 >= hash 的虚拟节点
	start := sort.Search(len(s.hashes), func(i int) bool {
		return s.hashes[i] >= hash
	})
	for i := 0; i < len(s.owners); i++ {
		if n := s.owners[(start+i)%len(s.owners)]; n.Selectable() {
			return n, nil
		}
	}
	return nil, ErrNoAvailableNode
}

func (s *consistentHashStrategy) Close() error {
	return nil
}
