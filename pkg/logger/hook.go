package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

const redacted = "***REDACTED***"

// Hook 在条目写出前被调用，返回 false 丢弃该条目。
// fields 可以原地改写。
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool
}

// HookFunc 函数式 Hook
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) bool

func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool {
	return f(entry, fields)
}

// hookCore 在 Write 前依次执行 hooks
type hookCore struct {
	zapcore.Core
	hooks []Hook
}

func wrapHooks(core zapcore.Core, hooks []Hook) zapcore.Core {
	if len(hooks) == 0 {
		return core
	}
	return &hookCore{Core: core, hooks: hooks}
}

func (c *hookCore) With(fields []zapcore.Field) zapcore.Core {
	return &hookCore{Core: c.Core.With(fields), hooks: c.hooks}
}

func (c *hookCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *hookCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	for _, h := range c.hooks {
		if !h.OnWrite(entry, fields) {
			return nil
		}
	}
	return c.Core.Write(entry, fields)
}

// SensitiveDataHook 将指定 key 的字段值替换为掩码，key 不区分大小写
func SensitiveDataHook(keys []string) Hook {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return HookFunc(func(_ zapcore.Entry, fields []zapcore.Field) bool {
		for i := range fields {
			if _, ok := set[strings.ToLower(fields[i].Key)]; ok {
				fields[i] = zapcore.Field{Key: fields[i].Key, Type: zapcore.StringType, String: redacted}
			}
		}
		return true
	})
}

// NamedLevelHook 对名称以 prefix 开头的 logger 只放行 level 及以上级别，
// 用于单独压低 relay 等热路径的日志
func NamedLevelHook(prefix string, level zapcore.Level) Hook {
	return HookFunc(func(entry zapcore.Entry, _ []zapcore.Field) bool {
		if !strings.HasPrefix(entry.LoggerName, prefix) {
			return true
		}
		return entry.Level >= level
	})
}
