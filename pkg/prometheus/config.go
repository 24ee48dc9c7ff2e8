package prometheus

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
)

const (
	defaultMetricsPath = "/metrics"
	defaultHealthPath  = "/healthz"
	defaultHTTPTimeout = 10 * time.Second
)

var validate = config.NewValidator()

// Config 指标配置
type Config struct {
	// Namespace 指标名前缀
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace" validate:"required"`
	Subsystem string `mapstructure:"subsystem" json:"subsystem" yaml:"subsystem"`

	HTTPServer HTTPServerConfig `mapstructure:"http_server" json:"http_server" yaml:"http_server"`

	EnableGoCollector      bool `mapstructure:"enable_go_collector" json:"enable_go_collector" yaml:"enable_go_collector"`
	EnableProcessCollector bool `mapstructure:"enable_process_collector" json:"enable_process_collector" yaml:"enable_process_collector"`
}

// HTTPServerConfig 管理端点，同时提供指标和健康检查
type HTTPServerConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	Path    string `mapstructure:"path" json:"path" yaml:"path"`
	// HealthPath 未设置健康检查函数时恒返回 200
	HealthPath string        `mapstructure:"health_path" json:"health_path" yaml:"health_path"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Namespace: "xdooria_lb",
		HTTPServer: HTTPServerConfig{
			Addr:       "127.0.0.1:9090",
			Path:       defaultMetricsPath,
			HealthPath: defaultHealthPath,
			Timeout:    defaultHTTPTimeout,
		},
		EnableGoCollector:      true,
		EnableProcessCollector: true,
	}
}

// Validate 检查必填项，并为启用的 HTTP 端点补全路径和超时
func (c *Config) Validate() error {
	if err := validate.Validate(c); err != nil {
		return errors.Mark(err, ErrInvalidConfig)
	}
	if !c.HTTPServer.Enabled {
		return nil
	}
	s := &c.HTTPServer
	if s.Path == "" {
		s.Path = defaultMetricsPath
	}
	if s.HealthPath == "" {
		s.HealthPath = defaultHealthPath
	}
	if s.Path == s.HealthPath {
		return errors.Wrapf(ErrInvalidConfig, "metrics and health share path %s", s.Path)
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultHTTPTimeout
	}
	return nil
}
