package lb

import (
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/lk2023060901/xdooria-lb/pkg/prometheus"
)

const (
	directionUpstream   = "upstream"
	directionDownstream = "downstream"
)

var dialBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5}

// metrics 负载均衡指标，nil 时所有方法为空操作
type metrics struct {
	active          *prometheus.GaugeVec
	accepted        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	connectFailures *prometheus.CounterVec
	nodeHealthy     *prometheus.GaugeVec
	relayBytes      *prometheus.CounterVec
	dialSeconds     *prometheus.HistogramVec
}

func newMetrics(c *prometheus.Client) (*metrics, error) {
	if c == nil {
		return nil, nil
	}

	m := &metrics{}
	var err error
	if m.active, err = c.NewGauge("connections_active", "Inbound connections paired with a backend.", nil); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	if m.accepted, err = c.NewCounter("connections_accepted_total", "Inbound connections accepted.", nil); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	if m.rejected, err = c.NewCounter("connections_rejected_total", "Inbound connections closed because no node was available.", nil); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	if m.connectFailures, err = c.NewCounter("backend_connect_failures_total", "Failed backend connection attempts.", []string{"node"}); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	if m.nodeHealthy, err = c.NewGauge("node_healthy", "Whether a node is selectable (1) or not (0).", []string{"node"}); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	if m.relayBytes, err = c.NewCounter("relay_bytes_total", "Bytes relayed between clients and backends.", []string{"direction"}); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	if m.dialSeconds, err = c.NewHistogram("backend_dial_seconds", "Backend connect latency.", []string{"node"}, dialBuckets); err != nil {
		return nil, errors.Wrap(err, "lb: register metrics")
	}
	return m, nil
}

func (m *metrics) connected() {
	if m == nil {
		return
	}
	m.accepted.WithLabelValues().Inc()
}

func (m *metrics) paired(delta float64) {
	if m == nil {
		return
	}
	m.active.WithLabelValues().Add(delta)
}

func (m *metrics) noNode() {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues().Inc()
}

func (m *metrics) dialed(node string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.dialSeconds.WithLabelValues(node).Observe(seconds)
	if err != nil {
		m.connectFailures.WithLabelValues(node).Inc()
	}
}

func (m *metrics) relayed(direction string, n int) {
	if m == nil {
		return
	}
	m.relayBytes.WithLabelValues(direction).Add(float64(n))
}

// nodeHealth 作为 Host 的健康观察者
func (m *metrics) nodeHealth(n *balancer.Node, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy && n.IsEnabled() {
		v = 1
	}
	m.nodeHealthy.WithLabelValues(n.Endpoint()).Set(v)
}
