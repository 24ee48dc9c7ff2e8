package lb

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/lk2023060901/xdooria-lb/pkg/transport"
)

var _ transport.ServerHandler = (*Balancer)(nil)

// OnConnected 选择节点并连接后端，失败的节点标记为失败后换下一个
// 没有可用节点时直接断开入站连接，不返回任何数据
func (b *Balancer) OnConnected(c *transport.AcceptedClient) {
	b.metrics.connected()
	info := balancer.PickInfo{RemoteAddr: c.Conn().RemoteAddr()}

	for c.IsConnected() && b.IsRunning() {
		node, err := b.host.Select(info)
		if err != nil {
			b.metrics.noNode()
			b.warn.Warn("no available node, closing connection",
				"conn", c.ID(), "remote", c.RemoteAddr(), "error", err)
			_ = b.server.Disconnect(c.ID())
			return
		}

		backend, err := b.connect(c.ID(), node)
		if err == nil {
			c.SetTag(&pair{node: node, backend: backend})
			b.metrics.paired(1)
			b.logger.Debug("relay established", "conn", c.ID(), "remote", c.RemoteAddr(), "node", node.Endpoint())
			return
		}
		if b.ctx.Err() != nil {
			break
		}
		node.ToFailed(err)
	}
	_ = b.server.Disconnect(c.ID())
}

func (b *Balancer) connect(id transport.ConnID, node *balancer.Node) (*transport.Client, error) {
	backend, err := transport.NewClient(
		b.config.backendConfig(node.Endpoint(), b.host.DialTimeout()),
		transport.WithClientLogger(b.logger),
		transport.WithClientHandler(backendHandler{b: b}),
		transport.WithClientWorkers(b.workers),
		transport.WithTag(id),
	)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = backend.OpenContext(b.ctx)
	b.metrics.dialed(node.Endpoint(), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// OnReceived 入站数据原样转发给后端
func (b *Balancer) OnReceived(c *transport.AcceptedClient, data []byte) {
	p, ok := c.Tag().(*pair)
	if !ok || p == nil {
		return
	}
	if err := p.backend.Send(data); err != nil {
		if !errors.Is(err, transport.ErrNotRunning) {
			b.logger.Debug("relay to backend failed", "conn", c.ID(), "node", p.node.Endpoint(), "error", err)
		}
		return
	}
	b.metrics.relayed(directionUpstream, len(data))
}

// OnDisconnected 入站连接断开时关闭对应的后端连接
func (b *Balancer) OnDisconnected(c *transport.AcceptedClient, err error) {
	p, ok := c.Tag().(*pair)
	if !ok || p == nil {
		return
	}
	c.SetTag(nil)
	b.metrics.paired(-1)
	if p.backend.IsRunning() {
		_ = p.backend.Close()
	}
	if err != nil {
		b.logger.Debug("relay closed", "conn", c.ID(), "node", p.node.Endpoint(), "error", err)
	}
}

// backendHandler 后端连接的回调，Tag 中保存入站连接编号
type backendHandler struct {
	b *Balancer
}

// OnReceived 后端数据原样转发给入站连接
func (h backendHandler) OnReceived(c *transport.Client, data []byte) {
	id, _ := c.Tag().(transport.ConnID)
	if err := h.b.server.Send(id, data); err != nil {
		h.b.logger.Debug("relay to client failed", "conn", id, "error", err)
		_ = c.Close()
		return
	}
	h.b.metrics.relayed(directionDownstream, len(data))
}

// OnStateChanged 后端连接关闭时断开入站连接
func (h backendHandler) OnStateChanged(c *transport.Client, running bool) {
	if running {
		return
	}
	id, _ := c.Tag().(transport.ConnID)
	_ = h.b.server.Disconnect(id)
}
