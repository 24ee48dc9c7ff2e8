package logger

import (
	"os"
	"sync"

	"github.com/lk2023060901/xdooria-lb/pkg/config"
)

var (
	defaultLogger   Logger
	defaultLoggerMu sync.RWMutex
)

// InitDefault 初始化默认 logger
func InitDefault(cfg *Config, opts ...Option) error {
	l, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// InitDefaultFromEnv 从环境变量初始化默认 logger
// 环境变量前缀: XDOORIA_LB_LOG_
func InitDefaultFromEnv() error {
	envConfig := &Config{}

	if level := os.Getenv("XDOORIA_LB_LOG_LEVEL"); level != "" {
		envConfig.Level = Level(level)
	}
	if format := os.Getenv("XDOORIA_LB_LOG_FORMAT"); format != "" {
		envConfig.Format = Format(format)
	}
	if path := os.Getenv("XDOORIA_LB_LOG_PATH"); path != "" {
		envConfig.EnableFile = true
		envConfig.OutputPath = path
	}
	if os.Getenv("XDOORIA_LB_LOG_DEVELOPMENT") == "true" {
		envConfig.Development = true
	}

	merged, err := config.MergeConfig(DefaultConfig(), envConfig)
	if err != nil {
		return err
	}
	return InitDefault(merged)
}

// SetDefault 设置默认 logger
func SetDefault(l Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// Default 获取默认 logger，未初始化时懒加载控制台 logger
func Default() Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		bl, err := New(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultLogger = bl
	}
	return defaultLogger
}

// Named 从默认 logger 派生具名 logger
func Named(name string) Logger {
	return Default().Named(name)
}
