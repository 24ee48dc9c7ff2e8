package config

import (
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Manager 基于 viper 的配置读取
type Manager interface {
	// LoadFile 读取配置文件，格式由扩展名决定
	LoadFile(path string) error
	// BindEnv 开启环境变量覆盖
	BindEnv(prefix string)
	Unmarshal(v any) error
	// UnmarshalKey 解析 key 对应的子树或单值，如 "balancer.nodes"
	UnmarshalKey(key string, v any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	IsSet(key string) bool
	AllSettings() map[string]any
	// Watch 文件变化且 viper 重新读取后调用 fn
	Watch(fn func()) error
}

var envKeys = strings.NewReplacer(".", "_")

type manager struct {
	mu    sync.RWMutex
	v     *viper.Viper
	watch sync.Once
	subs  []func()
}

// NewManager 创建 Manager
func NewManager(opts ...Option) Manager {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.v == nil {
		o.v = viper.New()
	}
	for k, val := range o.defaults {
		o.v.SetDefault(k, val)
	}
	m := &manager{v: o.v}
	if o.envPrefix != "" {
		m.bindEnv(o.envPrefix)
	}
	return m
}

func (m *manager) LoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrConfigFileNotFound, "%s", path)
		}
		return errors.Wrapf(err, "config: stat %s", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.SetConfigFile(path)
	if err := m.v.ReadInConfig(); err != nil {
		return errors.Mark(errors.Wrapf(err, "config: read %s", path), ErrInvalidConfigFormat)
	}
	return nil
}

func (m *manager) BindEnv(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindEnv(prefix)
}

func (m *manager) bindEnv(prefix string) {
	if prefix != "" {
		m.v.SetEnvPrefix(prefix)
	}
	m.v.SetEnvKeyReplacer(envKeys)
	m.v.AutomaticEnv()
}

// decodeHooks 字符串形式的时长和逗号分隔列表
var decodeHooks = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

func (m *manager) Unmarshal(v any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.v.Unmarshal(v, decodeHooks); err != nil {
		return errors.Mark(errors.Wrap(err, "config: unmarshal"), ErrInvalidConfigFormat)
	}
	return nil
}

func (m *manager) UnmarshalKey(key string, v any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.v.UnmarshalKey(key, v, decodeHooks); err != nil {
		return errors.Mark(errors.Wrapf(err, "config: unmarshal key %s", key), ErrInvalidConfigFormat)
	}
	return nil
}

func (m *manager) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key)
}

func (m *manager) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetString(key)
}

func (m *manager) GetInt(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetInt(key)
}

func (m *manager) GetBool(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetBool(key)
}

func (m *manager) IsSet(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.IsSet(key)
}

func (m *manager) AllSettings() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.AllSettings()
}

func (m *manager) Watch(fn func()) error {
	if fn == nil {
		return errors.New("config: nil watch callback")
	}
	m.mu.Lock()
	if m.v.ConfigFileUsed() == "" {
		m.mu.Unlock()
		return errors.New("config: watch before LoadFile")
	}
	m.subs = append(m.subs, fn)
	m.mu.Unlock()

	// viper 只允许注册一次 fsnotify 监听
	m.watch.Do(func() {
		m.v.OnConfigChange(func(fsnotify.Event) {
			m.mu.RLock()
			subs := append([]func(){}, m.subs...)
			m.mu.RUnlock()
			for _, fn := range subs {
				fn()
			}
		})
		m.v.WatchConfig()
	})
	return nil
}
