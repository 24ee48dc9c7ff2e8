package config

import "github.com/spf13/viper"

// Option 配置 Manager
type Option func(*options)

type options struct {
	v         *viper.Viper
	defaults  map[string]any
	envPrefix string
}

// WithDefaults 设置最低优先级的默认值，key 使用点分路径
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		if o.defaults == nil {
			o.defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			o.defaults[k] = v
		}
	}
}

// WithEnvPrefix 开启环境变量覆盖，balancer.port 对应 <PREFIX>_BALANCER_PORT
func WithEnvPrefix(prefix string) Option {
	return func(o *options) { o.envPrefix = prefix }
}

// WithViper 复用外部 viper 实例（如已绑定命令行参数）
func WithViper(v *viper.Viper) Option {
	return func(o *options) { o.v = v }
}
