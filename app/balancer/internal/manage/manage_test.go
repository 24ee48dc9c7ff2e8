package manage

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestMetricsAddr(t *testing.T) {
	tests := []struct {
		addr        string
		allowRemote bool
		want        string
	}{
		{"0.0.0.0:9090", false, "127.0.0.1:9090"},
		{"0.0.0.0:9090", true, "0.0.0.0:9090"},
		{"127.0.0.1:9090", false, "127.0.0.1:9090"},
		{"[::1]:9090", false, "[::1]:9090"},
		{"localhost:9090", false, "localhost:9090"},
		{":9090", false, "127.0.0.1:9090"},
		{"bad", false, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, MetricsAddr(tt.addr, tt.allowRemote))
		})
	}
}

type fakeSwitch struct {
	nodes []balancer.NodeStatus
	fail  string
}

func (f *fakeSwitch) Nodes() []balancer.NodeStatus {
	return append([]balancer.NodeStatus(nil), f.nodes...)
}

func (f *fakeSwitch) SetNodeEnabled(endpoint string, enabled bool) error {
	if endpoint == f.fail {
		return errors.New("boom")
	}
	for i := range f.nodes {
		if f.nodes[i].Endpoint == endpoint {
			f.nodes[i].Enabled = enabled
			return nil
		}
	}
	return balancer.ErrNodeNotFound
}

func TestSyncNodes(t *testing.T) {
	sw := &fakeSwitch{
		nodes: []balancer.NodeStatus{
			{Endpoint: "10.0.0.1:80", Enabled: true},
			{Endpoint: "10.0.0.2:80", Enabled: false},
			{Endpoint: "10.0.0.3:80", Enabled: true},
			{Endpoint: "10.0.0.4:80", Enabled: true},
		},
		fail: "10.0.0.4:80",
	}

	changed := SyncNodes(sw, []balancer.NodeConfig{
		{Host: "10.0.0.1", Port: 80, Disabled: true},
		{Host: "10.0.0.2", Port: 80},
		{Host: "10.0.0.4", Port: 80, Disabled: true},
	}, logger.NewNoop())

	assert.Equal(t, 2, changed)
	assert.False(t, sw.nodes[0].Enabled)
	assert.True(t, sw.nodes[1].Enabled)
	// 配置中缺失的节点保持原状
	assert.True(t, sw.nodes[2].Enabled)
	assert.True(t, sw.nodes[3].Enabled)

	assert.Zero(t, SyncNodes(sw, []balancer.NodeConfig{
		{Host: "10.0.0.1", Port: 80, Disabled: true},
		{Host: "10.0.0.2", Port: 80},
	}, nil))
}
