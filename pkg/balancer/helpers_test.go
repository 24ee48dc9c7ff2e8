package balancer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lk2023060901/xdooria-lb/pkg/logger"
)

// newTestNodes 按权重创建节点，地址依次为 10.0.0.1:80, 10.0.0.2:80 ...
func newTestNodes(t *testing.T, weights ...int) []*Node {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	rt := &nodeRuntime{
		ctx:          ctx,
		interval:     time.Hour,
		probeTimeout: 10 * time.Millisecond,
		logger:       logger.NewNoop(),
	}
	t.Cleanup(func() {
		cancel()
		rt.wg.Wait()
	})

	nodes := make([]*Node, 0, len(weights))
	for i, w := range weights {
		nodes = append(nodes, newNode(NodeConfig{
			Host:   net.IPv4(10, 0, 0, byte(i+1)).String(),
			Port:   80,
			Weight: w,
		}, rt))
	}
	return nodes
}

func tcpAddr(ip string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 40000}
}

func endpoints(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Endpoint()
	}
	return out
}
