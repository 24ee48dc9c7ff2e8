package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/xdooria-lb/app/balancer/internal/manage"
	"github.com/lk2023060901/xdooria-lb/pkg/app"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"github.com/lk2023060901/xdooria-lb/pkg/lb"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/lk2023060901/xdooria-lb/pkg/prometheus"
)

// Config 负载均衡服务配置
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// 指标配置
	Metrics prometheus.Config `mapstructure:"metrics"`

	// 负载均衡配置
	Balancer lb.Config `mapstructure:"balancer"`

	// 是否监听配置文件变化，热更新节点开关
	WatchConfig bool `mapstructure:"watch_config"`
}

func main() {
	cfg := Config{
		Log:      *logger.DefaultConfig(),
		Metrics:  *prometheus.DefaultConfig(),
		Balancer: *lb.DefaultConfig(),
	}
	if err := app.LoadConfig(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "balancer: %v\n", err)
		os.Exit(1)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "balancer: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(l)

	if err := run(&cfg, l); err != nil {
		l.Error("balancer exited with error", "error", err)
		_ = l.Sync()
		os.Exit(1)
	}
}

func run(cfg *Config, l logger.Logger) error {
	// 管理端点默认只对本机开放
	cfg.Metrics.HTTPServer.Addr = manage.MetricsAddr(cfg.Metrics.HTTPServer.Addr, cfg.Balancer.AllowRemoteManage)
	var ready atomic.Pointer[lb.Balancer]
	metrics, err := prometheus.New(&cfg.Metrics,
		prometheus.WithLogger(l),
		prometheus.WithHealthCheck(func() error {
			if b := ready.Load(); b != nil {
				return b.Health()
			}
			return lb.ErrNotOpen
		}),
	)
	if err != nil {
		return errors.Wrap(err, "create metrics client")
	}

	balancer, err := lb.New(&cfg.Balancer, lb.WithLogger(l), lb.WithMetrics(metrics))
	if err != nil {
		_ = metrics.Close()
		return errors.Wrap(err, "create balancer")
	}
	ready.Store(balancer)

	application := app.NewBaseApp(app.WithName("balancer"), app.WithLogger(l))
	application.AppendServer(app.AsServer(balancer))
	application.AppendCloser(metrics)

	if cfg.WatchConfig {
		watcher, err := watchNodes(balancer, l)
		if err != nil {
			_ = metrics.Close()
			return err
		}
		application.AppendCloser(watcher)
	}
	return application.Run()
}

// watchNodes 配置文件变化时只同步节点开关
func watchNodes(b *lb.Balancer, l logger.Logger) (*config.Watcher[Config], error) {
	watcher, err := config.NewWatcher[Config](app.GetConfigPath(), config.WithEnvPrefix(app.EnvPrefix))
	if err != nil {
		return nil, errors.Wrap(err, "watch config")
	}
	watcher.OnError(func(err error) {
		l.Warn("config reload failed, keeping previous config", "error", err)
	})
	watcher.OnChange(func(c *Config) {
		if !b.IsRunning() {
			return
		}
		if n := manage.SyncNodes(b, c.Balancer.Nodes, l); n > 0 {
			l.Info("node switches reloaded", "changed", n)
		}
	})
	return watcher, nil
}
