package prometheus

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/lk2023060901/xdooria-lb/pkg/xsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	CounterVec   = prometheus.CounterVec
	GaugeVec     = prometheus.GaugeVec
	HistogramVec = prometheus.HistogramVec
)

const shutdownTimeout = 5 * time.Second

type Option func(*Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = logger.OrNoop(l) }
}

// WithHealthCheck 健康检查端点调用 fn，返回错误时响应 503
func WithHealthCheck(fn func() error) Option {
	return func(c *Client) { c.health = fn }
}

// Client 独立 Registry 及可选的 HTTP 管理端点
type Client struct {
	config   *Config
	registry *prometheus.Registry
	logger   logger.Logger
	health   func() error

	// 名称到 collector，nil 值表示正在注册
	vecs *xsync.Map[string, prometheus.Collector]

	server *http.Server
	ln     net.Listener
	done   chan struct{}
	closed atomic.Bool
}

// New 创建 Client。启用 HTTP 端点时同步完成监听，失败直接返回错误
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger.NewNoop(),
		vecs:     xsync.NewMap[string, prometheus.Collector](),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.EnableGoCollector {
		c.registry.MustRegister(collectors.NewGoCollector())
	}
	if cfg.EnableProcessCollector {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	if cfg.HTTPServer.Enabled {
		if err := c.serve(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) Config() *Config                { return c.config }
func (c *Client) Registry() *prometheus.Registry { return c.registry }

// Handler 指标端点，可挂到外部 mux
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          promLogger{c.logger},
	})
}

// HealthHandler 健康检查端点
func (c *Client) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if c.health != nil {
			if err := c.health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
}

// Addr 管理端点的实际地址，未启用时为 nil
func (c *Client) Addr() net.Addr {
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

func (c *Client) serve() error {
	s := c.config.HTTPServer
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "prometheus: listen %s", s.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle(s.Path, c.Handler())
	mux.Handle(s.HealthPath, c.HealthHandler())

	c.ln = ln
	c.done = make(chan struct{})
	c.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: s.Timeout,
		ReadTimeout:       s.Timeout,
		WriteTimeout:      s.Timeout,
	}
	go func() {
		defer close(c.done)
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics endpoint stopped", "error", err)
		}
	}()

	c.logger.Info("metrics endpoint listening",
		"addr", ln.Addr().String(), "metrics", s.Path, "health", s.HealthPath)
	return nil
}

// Close 停止管理端点，重复调用返回 ErrClientClosed
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := c.server.Shutdown(ctx)
	<-c.done
	return err
}

func (c *Client) IsClosed() bool { return c.closed.Load() }

// promLogger 把 promhttp 的错误输出转到 logger
type promLogger struct{ l logger.Logger }

func (p promLogger) Println(v ...interface{}) {
	p.l.Error("metrics handler error", "detail", v)
}
