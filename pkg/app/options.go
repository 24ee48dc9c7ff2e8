package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
)

const defaultStopTimeout = 30 * time.Second

// Options 进程级参数。ID 用于区分同一主机上的多个 balancer 实例
type Options struct {
	ID          string
	Name        string
	Version     string
	StopTimeout time.Duration
	Logger      logger.Logger
}

type Option func(*Options)

// DefaultOptions 每次调用生成新的实例 ID
func DefaultOptions() Options {
	return Options{
		ID:          uuid.NewString(),
		Name:        AppName,
		Version:     Version,
		StopTimeout: defaultStopTimeout,
		Logger:      logger.Default(),
	}
}

func WithLogger(l logger.Logger) Option { return func(o *Options) { o.Logger = l } }
func WithID(id string) Option           { return func(o *Options) { o.ID = id } }
func WithName(name string) Option       { return func(o *Options) { o.Name = name } }
func WithVersion(v string) Option       { return func(o *Options) { o.Version = v } }

// WithStopTimeout 非正值保留默认的 30s
func WithStopTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.StopTimeout = d
		}
	}
}
