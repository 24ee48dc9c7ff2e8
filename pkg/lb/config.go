package lb

import (
	"net"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"github.com/lk2023060901/xdooria-lb/pkg/transport"
)

var validate = config.NewValidator()

// Config 负载均衡器配置
type Config struct {
	// 监听地址
	Host string `mapstructure:"host" json:"host" yaml:"host"`
	// 监听端口，0 表示由系统分配
	Port int `mapstructure:"port" json:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// 是否允许远程访问管理接口（指标端点）
	AllowRemoteManage bool `mapstructure:"allow_remote_manage" json:"allow_remote_manage" yaml:"allow_remote_manage"`

	// 连接后端的超时（秒），-1 表示不限制
	Timeout int `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// 失败节点的探测间隔（秒）
	RecoveryTimes int `mapstructure:"recovery_times" json:"recovery_times" yaml:"recovery_times"`

	MaxBufferSize      int `mapstructure:"max_buffer_size" json:"max_buffer_size" yaml:"max_buffer_size" validate:"gte=0"`
	MaxConnectionCount int `mapstructure:"max_connection_count" json:"max_connection_count" yaml:"max_connection_count" validate:"gte=0"`
	ListenBacklog      int `mapstructure:"listen_backlog" json:"listen_backlog" yaml:"listen_backlog" validate:"gte=0"`

	// TCP KeepAlive 间隔，同时用于入站和出站连接
	TCPKeepAlive time.Duration `mapstructure:"tcp_keep_alive" json:"tcp_keep_alive" yaml:"tcp_keep_alive"`

	// Queue | IPQueue | Custom
	Strategy   string         `mapstructure:"strategy" json:"strategy" yaml:"strategy"`
	ExtendData map[string]any `mapstructure:"extend_data" json:"extend_data" yaml:"extend_data"`

	Nodes []balancer.NodeConfig `mapstructure:"nodes" json:"nodes" yaml:"nodes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               8088,
		Timeout:            5,
		RecoveryTimes:      600,
		MaxBufferSize:      transport.DefaultMaxBufferSize,
		MaxConnectionCount: transport.DefaultMaxConnectionCount,
		ListenBacklog:      111,
		TCPKeepAlive:       30 * time.Second,
		Strategy:           string(balancer.StrategyQueue),
	}
}

// Validate 验证监听相关配置，节点与策略在 Open 构建 Host 时校验
func (c *Config) Validate() error {
	if c == nil {
		return config.ErrNilConfig
	}
	return validate.Validate(c)
}

// Endpoint 监听地址 host:port
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HostConfig 转换为节点集合配置
func (c *Config) HostConfig() *balancer.HostConfig {
	return &balancer.HostConfig{
		Endpoint:      c.Endpoint(),
		Timeout:       c.Timeout,
		RecoveryTimes: c.RecoveryTimes,
		Strategy:      c.Strategy,
		ExtendData:    c.ExtendData,
		Nodes:         c.Nodes,
	}
}

// ServerConfig 转换为入站服务端配置
func (c *Config) ServerConfig() *transport.ServerConfig {
	return &transport.ServerConfig{
		Addr:               c.Endpoint(),
		Network:            "tcp",
		MaxConnectionCount: c.MaxConnectionCount,
		MaxBufferSize:      c.MaxBufferSize,
		ListenBacklog:      c.ListenBacklog,
		TCPKeepAlive:       c.TCPKeepAlive,
		TCPNoDelay:         true,
	}
}

// backendConfig 出站客户端配置
func (c *Config) backendConfig(addr string, dialTimeout time.Duration) *transport.ClientConfig {
	return &transport.ClientConfig{
		Addr:           addr,
		Network:        "tcp",
		DialTimeout:    dialTimeout,
		ReadBufferSize: max(c.MaxBufferSize, 1),
		TCPKeepAlive:   c.TCPKeepAlive,
		TCPNoDelay:     true,
	}
}

// mergeDefaults 未设置的字段使用默认值，端口保持原值以便使用 0 让系统分配
func mergeDefaults(cfg *Config) (*Config, error) {
	if cfg == nil {
		return DefaultConfig(), nil
	}
	src := *cfg
	merged, err := config.MergeConfig(DefaultConfig(), &src)
	if err != nil {
		return nil, errors.Wrap(err, "lb: merge config")
	}
	merged.Port = cfg.Port
	return merged, nil
}
