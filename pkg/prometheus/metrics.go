package prometheus

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// register 先占位再注册，同名只能成功一次
func register[T prometheus.Collector](c *Client, name string, build func() T) (T, error) {
	var zero T
	if c.IsClosed() {
		return zero, ErrClientClosed
	}
	if _, loaded := c.vecs.LoadOrStore(name, nil); loaded {
		return zero, errors.Wrapf(ErrMetricExists, "%s", name)
	}

	col := build()
	if err := c.registry.Register(col); err != nil {
		c.vecs.Delete(name)
		return zero, errors.Wrapf(err, "prometheus: register %s", name)
	}
	c.vecs.Store(name, col)
	return col, nil
}

// lookup 名称存在但类型不符时返回 false
func lookup[T prometheus.Collector](c *Client, name string) (T, bool) {
	col, ok := c.vecs.Load(name)
	if !ok || col == nil {
		var zero T
		return zero, false
	}
	v, ok := col.(T)
	return v, ok
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func (c *Client) NewCounter(name, help string, labels []string) (*CounterVec, error) {
	return register(c, name, func() *CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	})
}

func (c *Client) NewGauge(name, help string, labels []string) (*GaugeVec, error) {
	return register(c, name, func() *GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	})
}

// NewHistogram buckets 为 nil 时使用 prometheus.DefBuckets
func (c *Client) NewHistogram(name, help string, labels []string, buckets []float64) (*HistogramVec, error) {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return register(c, name, func() *HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labels)
	})
}

func (c *Client) MustNewCounter(name, help string, labels []string) *CounterVec {
	return must(c.NewCounter(name, help, labels))
}

func (c *Client) MustNewGauge(name, help string, labels []string) *GaugeVec {
	return must(c.NewGauge(name, help, labels))
}

func (c *Client) MustNewHistogram(name, help string, labels []string, buckets []float64) *HistogramVec {
	return must(c.NewHistogram(name, help, labels, buckets))
}

func (c *Client) GetCounter(name string) (*CounterVec, bool) {
	return lookup[*CounterVec](c, name)
}

func (c *Client) GetGauge(name string) (*GaugeVec, bool) {
	return lookup[*GaugeVec](c, name)
}

func (c *Client) GetHistogram(name string) (*HistogramVec, bool) {
	return lookup[*HistogramVec](c, name)
}
