package balancer

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// StrategyKind 节点选择策略
type StrategyKind string

const (
	StrategyQueue   StrategyKind = "Queue"
	StrategyIPQueue StrategyKind = "IPQueue"
	StrategyCustom  StrategyKind = "Custom"
)

// ExtendData 中的约定键
const (
	// ExtendKeyType Custom 策略的注册名
	ExtendKeyType = "type"
	// ExtendKeyAffinitySeconds IPQueue 的亲和窗口（秒），设置后启用过期模式
	ExtendKeyAffinitySeconds = "affinity_seconds"
)

// ParseStrategy 解析策略名，不区分大小写，空串视为 Queue
func ParseStrategy(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "queue":
		return StrategyQueue, nil
	case "ipqueue":
		return StrategyIPQueue, nil
	case "custom":
		return StrategyCustom, nil
	default:
		return "", errors.Wrapf(ErrUnknownStrategy, "%q", s)
	}
}

// NodeConfig 后端节点配置
type NodeConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port" validate:"min=1,max=65535"`
	Weight   int    `mapstructure:"weight" json:"weight" yaml:"weight"`
	Disabled bool   `mapstructure:"disabled" json:"disabled" yaml:"disabled"`
}

// Endpoint 返回 host:port
func (c NodeConfig) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HostConfig 一组后端节点及其选择策略
type HostConfig struct {
	// Endpoint 对外监听地址，仅作标识
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`

	// Timeout 连接后端的超时（秒），-1 表示不限制
	Timeout int `mapstructure:"timeout" json:"timeout" yaml:"timeout" validate:"gte=-1"`

	// RecoveryTimes 失败节点的探测间隔（秒）
	RecoveryTimes int `mapstructure:"recovery_times" json:"recovery_times" yaml:"recovery_times" validate:"gte=10"`

	Strategy   string         `mapstructure:"strategy" json:"strategy" yaml:"strategy"`
	ExtendData map[string]any `mapstructure:"extend_data" json:"extend_data" yaml:"extend_data"`

	Nodes []NodeConfig `mapstructure:"nodes" json:"nodes" yaml:"nodes" validate:"min=1,dive"`
}

// DefaultHostConfig 返回默认配置
func DefaultHostConfig() *HostConfig {
	return &HostConfig{
		Timeout:       5,
		RecoveryTimes: 600,
		Strategy:      string(StrategyQueue),
	}
}

// DialTimeout 连接超时，0 表示不限制
func (c *HostConfig) DialTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Timeout) * time.Second
}

// RecoveryInterval 失败节点的探测间隔
func (c *HostConfig) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryTimes) * time.Second
}

// strategyName 解析出注册表中的策略名
func (c *HostConfig) strategyName() (string, error) {
	kind, err := ParseStrategy(c.Strategy)
	if err != nil {
		return "", err
	}

	switch kind {
	case StrategyQueue:
		return QueueName, nil
	case StrategyIPQueue:
		return IPQueueName, nil
	}

	name, _ := c.ExtendData[ExtendKeyType].(string)
	if name == "" {
		return "", errors.Wrapf(ErrInvalidConfig, "custom strategy requires extend_data.%s", ExtendKeyType)
	}
	return name, nil
}
