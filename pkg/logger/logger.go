// pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 确保 BaseLogger 实现了 Logger 接口
var _ Logger = (*BaseLogger)(nil)

// ContextFieldExtractor 从 context 提取字段的函数类型
type ContextFieldExtractor func(ctx context.Context) []zap.Field

// DefaultContextExtractor 默认不提取任何字段
func DefaultContextExtractor(ctx context.Context) []zap.Field {
	return nil
}

// Option 配置选项
type Option func(*BaseLogger)

// WithName 设置 logger 名称
func WithName(name string) Option {
	return func(l *BaseLogger) {
		l.name = name
	}
}

// WithHooks 添加钩子
func WithHooks(hooks ...Hook) Option {
	return func(l *BaseLogger) {
		l.hooks = append(l.hooks, hooks...)
	}
}

// WithCore 使用自定义 core（测试中写入内存缓冲区）
func WithCore(core zapcore.Core) Option {
	return func(l *BaseLogger) {
		l.core = core
	}
}

// WithContextExtractor 设置 context 字段提取器
func WithContextExtractor(fn ContextFieldExtractor) Option {
	return func(l *BaseLogger) {
		if fn != nil {
			l.contextExtractor = fn
		}
	}
}

// BaseLogger 基于 zap 的日志记录器实现
type BaseLogger struct {
	*zap.Logger
	config           *Config
	name             string
	hooks            []Hook
	core             zapcore.Core
	contextExtractor ContextFieldExtractor
}

// New 创建新的 BaseLogger
func New(cfg *Config, opts ...Option) (*BaseLogger, error) {
	// 合并默认配置，用户只传部分字段时也能工作
	mergedConfig, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "logger: merge config")
	}

	if err := mergedConfig.Validate(); err != nil {
		return nil, err
	}

	l := &BaseLogger{
		config:           mergedConfig,
		contextExtractor: DefaultContextExtractor,
	}
	for _, opt := range opts {
		opt(l)
	}

	zl, err := l.build()
	if err != nil {
		return nil, err
	}
	l.Logger = zl

	return l, nil
}

// build 构建 zap logger
func (l *BaseLogger) build() (*zap.Logger, error) {
	core := l.core
	if core == nil {
		c, err := l.buildCore()
		if err != nil {
			return nil, err
		}
		core = c
	}

	if len(l.hooks) > 0 {
		core = wrapHooks(core, l.hooks)
	}

	// 采样，防止连接风暴时日志刷屏
	if l.config.EnableSampling {
		core = zapcore.NewSamplerWithOptions(core, 1, l.config.SamplingInitial, l.config.SamplingThereafter)
	}

	options := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	}
	if l.config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(l.config.StacktraceLevel.zapLevel(ErrorLevel)))
	}
	if l.config.Development {
		options = append(options, zap.Development())
	}

	zl := zap.New(core, options...)

	if len(l.config.GlobalFields) > 0 {
		fields := make([]zap.Field, 0, len(l.config.GlobalFields))
		for k, v := range l.config.GlobalFields {
			fields = append(fields, zap.Any(k, v))
		}
		zl = zl.With(fields...)
	}

	if l.name != "" {
		zl = zl.Named(l.name)
	}

	return zl, nil
}

// buildCore 根据配置创建 encoder + writer
func (l *BaseLogger) buildCore() (zapcore.Core, error) {
	encoderConfig := l.buildEncoderConfig()

	var encoder zapcore.Encoder
	switch l.config.Format {
	case ConsoleFormat:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writers := make([]zapcore.WriteSyncer, 0, 2)
	if l.config.EnableConsole {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}
	if l.config.EnableFile {
		fileWriter, err := NewRotationWriter(&l.config.Rotation, l.config.OutputPath)
		if err != nil {
			return nil, errors.Wrap(err, "logger: create rotation writer")
		}
		writers = append(writers, zapcore.AddSync(fileWriter))
	}

	level := l.config.Level.zapLevel(InfoLevel)
	return zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level), nil
}

// buildEncoderConfig 构建 encoder 配置
func (l *BaseLogger) buildEncoderConfig() zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if l.config.TimeFormat != "" {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(l.config.TimeFormat)
	} else {
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if l.config.Development {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return ec
}

// Debug 记录 debug 级别日志
func (l *BaseLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, toZapFields(keysAndValues...)...)
}

// Info 记录 info 级别日志
func (l *BaseLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, toZapFields(keysAndValues...)...)
}

// Warn 记录 warn 级别日志
func (l *BaseLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.Logger.Warn(msg, toZapFields(keysAndValues...)...)
}

// Error 记录 error 级别日志
func (l *BaseLogger) Error(msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, toZapFields(keysAndValues...)...)
}

// DebugContext 记录 debug 级别日志，并从 context 中提取字段
func (l *BaseLogger) DebugContext(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, append(l.contextExtractor(ctx), toZapFields(keysAndValues...)...)...)
}

// InfoContext 记录 info 级别日志，并从 context 中提取字段
func (l *BaseLogger) InfoContext(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, append(l.contextExtractor(ctx), toZapFields(keysAndValues...)...)...)
}

// WarnContext 记录 warn 级别日志，并从 context 中提取字段
func (l *BaseLogger) WarnContext(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Logger.Warn(msg, append(l.contextExtractor(ctx), toZapFields(keysAndValues...)...)...)
}

// ErrorContext 记录 error 级别日志，并从 context 中提取字段
func (l *BaseLogger) ErrorContext(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, append(l.contextExtractor(ctx), toZapFields(keysAndValues...)...)...)
}

// Named 创建具名 logger
func (l *BaseLogger) Named(name string) Logger {
	return l.derive(l.Logger.Named(name), name)
}

// WithFields 添加字段
func (l *BaseLogger) WithFields(keysAndValues ...interface{}) Logger {
	fields := toZapFields(keysAndValues...)
	if len(fields) == 0 {
		return l
	}
	return l.derive(l.Logger.With(fields...), l.name)
}

func (l *BaseLogger) derive(zl *zap.Logger, name string) *BaseLogger {
	return &BaseLogger{
		Logger:           zl,
		config:           l.config,
		name:             name,
		hooks:            l.hooks,
		core:             l.core,
		contextExtractor: l.contextExtractor,
	}
}

// Sync 同步日志
func (l *BaseLogger) Sync() error {
	return l.Logger.Sync()
}

// toZapFields 将 key-value 对转换为 zap.Field
// 第一个参数为 zap.Field 时按字段列表处理
func toZapFields(keysAndValues ...interface{}) []zap.Field {
	if len(keysAndValues) == 0 {
		return nil
	}

	if _, ok := keysAndValues[0].(zap.Field); ok {
		fields := make([]zap.Field, 0, len(keysAndValues))
		for _, v := range keysAndValues {
			if f, ok := v.(zap.Field); ok {
				fields = append(fields, f)
			}
		}
		return fields
	}

	if len(keysAndValues)%2 != 0 {
		keysAndValues = append(keysAndValues, "(MISSING)")
	}

	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
