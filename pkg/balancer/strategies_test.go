package balancer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom_OnlySelectable(t *testing.T) {
	nodes := newTestNodes(t, 1, 1, 1)
	s, err := newRandom(nodes, StrategyOptions{})
	require.NoError(t, err)

	nodes[0].SetEnabled(false)
	nodes[2].failed.Store(true)
	for i := 0; i < 50; i++ {
		n, err := s.Select(PickInfo{})
		require.NoError(t, err)
		assert.Same(t, nodes[1], n)
	}

	nodes[1].SetEnabled(false)
	_, err = s.Select(PickInfo{})
	assert.ErrorIs(t, err, ErrNoAvailableNode)
}

func TestWeighted_SmoothSequence(t *testing.T) {
	nodes := newTestNodes(t, 5, 1, 1)
	a, b, c := nodes[0], nodes[1], nodes[2]
	s, err := newWeighted(nodes, StrategyOptions{})
	require.NoError(t, err)

	got := selectN(t, s, 7, PickInfo{})
	assert.Equal(t, endpoints([]*Node{a, a, b, a, c, a, a}), endpoints(got))
}

func TestWeighted_SkipsUnavailable(t *testing.T) {
	nodes := newTestNodes(t, 5, 1)
	s, err := newWeighted(nodes, StrategyOptions{})
	require.NoError(t, err)

	nodes[0].failed.Store(true)
	for _, n := range selectN(t, s, 5, PickInfo{}) {
		assert.Same(t, nodes[1], n)
	}
}

func TestConsistentHash_StableAndFailover(t *testing.T) {
	nodes := newTestNodes(t, 1, 1, 1, 1)
	s, err := newConsistentHash(nodes, StrategyOptions{})
	require.NoError(t, err)

	// 同一 IP 总是落在同一节点
	assignments := make(map[string]*Node)
	for i := 0; i < 32; i++ {
		ip := fmt.Sprintf("172.16.0.%d", i)
		n, err := s.Select(PickInfo{RemoteAddr: tcpAddr(ip)})
		require.NoError(t, err)
		assignments[ip] = n

		again, err := s.Select(PickInfo{RemoteAddr: tcpAddr(ip)})
		require.NoError(t, err)
		assert.Same(t, n, again)
	}

	// 失败节点上的 IP 迁移，其他 IP 不受影响
	failed := assignments["172.16.0.0"]
	failed.failed.Store(true)
	for ip, prev := range assignments {
		n, err := s.Select(PickInfo{RemoteAddr: tcpAddr(ip)})
		require.NoError(t, err)
		if prev == failed {
			assert.NotSame(t, failed, n)
		} else {
			assert.Same(t, prev, n, ip)
		}
	}

	for _, n := range nodes {
		n.failed.Store(true)
	}
	_, err = s.Select(PickInfo{RemoteAddr: tcpAddr("172.16.0.1")})
	assert.ErrorIs(t, err, ErrNoAvailableNode)
}
