package transport

import (
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	DefaultMaxConnectionCount = 1111
	DefaultMaxBufferSize      = 2048
	DefaultDialTimeout        = 5 * time.Second

	minMaxBufferSize = 128
)

// ServerConfig 服务端配置
type ServerConfig struct {
	// 监听地址，如 "0.0.0.0:8088"
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`

	// 网络类型，tcp/tcp4/tcp6
	Network string `mapstructure:"network" json:"network" yaml:"network"`

	// 最大并发连接数，同时决定准入信号量容量
	MaxConnectionCount int `mapstructure:"max_connection_count" json:"max_connection_count" yaml:"max_connection_count"`

	// 每个连接的接收缓冲区大小
	MaxBufferSize int `mapstructure:"max_buffer_size" json:"max_buffer_size" yaml:"max_buffer_size"`

	// 预热的连接对象数量
	// Go 不暴露 listen(2) 的 backlog 参数，这里只用于对象池预分配
	ListenBacklog int `mapstructure:"listen_backlog" json:"listen_backlog" yaml:"listen_backlog"`

	// TCP KeepAlive 间隔，0 使用系统默认，负数关闭
	TCPKeepAlive time.Duration `mapstructure:"tcp_keep_alive" json:"tcp_keep_alive" yaml:"tcp_keep_alive"`

	// 是否禁用 Nagle 算法
	TCPNoDelay bool `mapstructure:"tcp_no_delay" json:"tcp_no_delay" yaml:"tcp_no_delay"`
}

// DefaultServerConfig 返回默认服务端配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:               "0.0.0.0:8088",
		Network:            "tcp",
		MaxConnectionCount: DefaultMaxConnectionCount,
		MaxBufferSize:      DefaultMaxBufferSize,
		ListenBacklog:      DefaultMaxConnectionCount / 10,
		TCPKeepAlive:       30 * time.Second,
		TCPNoDelay:         true,
	}
}

// Normalize 将低于下限的数值提升到下限
func (c *ServerConfig) Normalize() {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.MaxConnectionCount < 1 {
		c.MaxConnectionCount = 1
	}
	if c.MaxBufferSize < minMaxBufferSize {
		c.MaxBufferSize = minMaxBufferSize
	}
	if c.ListenBacklog < 1 {
		c.ListenBacklog = max(c.MaxConnectionCount/10, 1)
	}
}

// Validate 验证服务端配置
func (c *ServerConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if err := validateNetwork(c.Network); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.Wrapf(ErrInvalidAddr, "%q: %v", c.Addr, err)
	}
	if c.MaxConnectionCount < 1 {
		return errors.Wrap(ErrInvalidConfig, "max_connection_count must be at least 1")
	}
	if c.MaxBufferSize < minMaxBufferSize {
		return errors.Wrapf(ErrInvalidConfig, "max_buffer_size must be at least %d", minMaxBufferSize)
	}
	return nil
}

// ClientConfig 客户端配置
type ClientConfig struct {
	// 目标地址
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`

	// 网络类型
	Network string `mapstructure:"network" json:"network" yaml:"network"`

	// 连接超时，0 表示不限制
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`

	// 接收缓冲区大小
	ReadBufferSize int `mapstructure:"read_buffer_size" json:"read_buffer_size" yaml:"read_buffer_size"`

	// TCP KeepAlive 间隔
	TCPKeepAlive time.Duration `mapstructure:"tcp_keep_alive" json:"tcp_keep_alive" yaml:"tcp_keep_alive"`

	// 是否禁用 Nagle 算法
	TCPNoDelay bool `mapstructure:"tcp_no_delay" json:"tcp_no_delay" yaml:"tcp_no_delay"`
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Network:        "tcp",
		DialTimeout:    DefaultDialTimeout,
		ReadBufferSize: DefaultMaxBufferSize,
		TCPKeepAlive:   30 * time.Second,
		TCPNoDelay:     true,
	}
}

// Validate 验证客户端配置
func (c *ClientConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if err := validateNetwork(c.Network); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.Wrapf(ErrInvalidAddr, "%q: %v", c.Addr, err)
	}
	if c.DialTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "dial_timeout must not be negative")
	}
	if c.ReadBufferSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "read_buffer_size must be positive")
	}
	return nil
}

func validateNetwork(network string) error {
	switch network {
	case "tcp", "tcp4", "tcp6":
		return nil
	default:
		return errors.Wrapf(ErrInvalidConfig, "unsupported network %q", network)
	}
}
