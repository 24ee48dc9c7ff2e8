// Package manage 管理面辅助逻辑：指标端点的访问范围与节点开关的热更新
package manage

import (
	"net"

	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
)

// MetricsAddr 不允许远程管理时把监听地址限制到本机回环
func MetricsAddr(addr string, allowRemote bool) string {
	if allowRemote {
		return addr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return addr
	}
	if host == "localhost" {
		return addr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

// NodeSwitch 可以按地址启停节点的对象
type NodeSwitch interface {
	Nodes() []balancer.NodeStatus
	SetNodeEnabled(endpoint string, enabled bool) error
}

// SyncNodes 按新配置中的 disabled 标记启停节点，返回发生变化的节点数
// 节点列表、端口和策略的变化需要重启才能生效
func SyncNodes(target NodeSwitch, nodes []balancer.NodeConfig, l logger.Logger) int {
	l = logger.OrNoop(l)

	want := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		want[n.Endpoint()] = !n.Disabled
	}

	changed := 0
	for _, st := range target.Nodes() {
		enabled, ok := want[st.Endpoint]
		if !ok {
			l.Warn("node removed from config, restart required", "node", st.Endpoint)
			continue
		}
		if enabled == st.Enabled {
			continue
		}
		if err := target.SetNodeEnabled(st.Endpoint, enabled); err != nil {
			l.Error("failed to switch node", "node", st.Endpoint, "error", err)
			continue
		}
		changed++
	}
	return changed
}
