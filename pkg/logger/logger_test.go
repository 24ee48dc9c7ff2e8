package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T, opts ...Option) (*BaseLogger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	l, err := New(&Config{Level: DebugLevel}, append([]Option{WithCore(core)}, opts...)...)
	require.NoError(t, err)
	return l, logs
}

func TestBaseLogger_KeysAndValues(t *testing.T) {
	l, logs := newObserved(t)

	l.Info("conn accepted", "conn", 7, "remote", "127.0.0.1:5000")
	l.Warn("odd", "dangling")
	l.Error("failed", "error", errors.New("boom"))
	l.Debug("fields", zap.String("node", "a"), zap.Int("weight", 3))

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, "conn accepted", entries[0].Message)
	assert.Equal(t, map[string]any{"conn": int64(7), "remote": "127.0.0.1:5000"}, entries[0].ContextMap())

	assert.Equal(t, "(MISSING)", entries[1].ContextMap()["dangling"])
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, map[string]any{"node": "a", "weight": int64(3)}, entries[3].ContextMap())
}

func TestBaseLogger_NamedAndWithFields(t *testing.T) {
	l, logs := newObserved(t, WithName("lb"))

	child := l.Named("transport").WithFields("balancer", "b1")
	child.Info("server closed")

	same := l.WithFields()
	assert.Same(t, l, same)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lb.transport", entries[0].LoggerName)
	assert.Equal(t, "b1", entries[0].ContextMap()["balancer"])
}

type ctxKey struct{}

func TestBaseLogger_ContextExtractor(t *testing.T) {
	l, logs := newObserved(t, WithContextExtractor(func(ctx context.Context) []zap.Field {
		if v, ok := ctx.Value(ctxKey{}).(string); ok {
			return []zap.Field{zap.String("trace", v)}
		}
		return nil
	}))

	ctx := context.WithValue(context.Background(), ctxKey{}, "t-1")
	l.InfoContext(ctx, "with trace", "k", "v")
	l.ErrorContext(context.Background(), "without trace")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "t-1", entries[0].ContextMap()["trace"])
	assert.NotContains(t, entries[1].ContextMap(), "trace")
}

func TestSensitiveDataHook(t *testing.T) {
	l, logs := newObserved(t, WithHooks(SensitiveDataHook([]string{"token"})))

	l.Info("login", "token", "secret", "user", "alice")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "***REDACTED***", entries[0].ContextMap()["token"])
	assert.Equal(t, "alice", entries[0].ContextMap()["user"])
}

func TestHookCanDropEntries(t *testing.T) {
	drop := HookFunc(func(e zapcore.Entry, _ []zapcore.Field) bool {
		return e.Level >= zapcore.WarnLevel
	})
	l, logs := newObserved(t, WithHooks(drop))

	l.Info("dropped")
	l.Warn("kept")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestNamedLevelHook(t *testing.T) {
	l, logs := newObserved(t, WithHooks(NamedLevelHook("lb", zapcore.WarnLevel)))

	l.Named("lb").Info("relay chunk")
	l.Named("lb").Warn("backend gone")
	l.Named("transport").Info("accepted")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "backend gone", logs.All()[0].Message)
	assert.Equal(t, "accepted", logs.All()[1].Message)
}

func TestNewRotationWriter_InvalidDuration(t *testing.T) {
	cfg := DefaultConfig().Rotation
	cfg.Type = RotationByTime
	cfg.RotationTime = "daily"
	_, err := NewRotationWriter(&cfg, filepath.Join(t.TempDir(), "lb.log"))
	assert.ErrorContains(t, err, "rotation_time")

	cfg.RotationTime = ""
	cfg.MaxAgeTime = "-1h"
	_, err = NewRotationWriter(&cfg, filepath.Join(t.TempDir(), "lb.log"))
	assert.ErrorContains(t, err, "max_age_time")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.EnableFile = true
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidOutputPath)

	cfg = DefaultConfig()
	cfg.EnableConsole = false
	assert.ErrorIs(t, cfg.Validate(), ErrNoOutputEnabled)
}

func TestLevelFallback(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, DebugLevel.zapLevel(InfoLevel))
	assert.Equal(t, zapcore.ErrorLevel, Level("verbose").zapLevel(ErrorLevel))
	assert.Equal(t, zapcore.InfoLevel, Level("verbose").zapLevel(""))
}

func TestNew_FileOutput(t *testing.T) {
	for _, rt := range []RotationType{RotationBySize, RotationByTime} {
		t.Run(string(rt), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lb.log")
			cfg := DefaultConfig()
			cfg.EnableConsole = false
			cfg.EnableFile = true
			cfg.OutputPath = path
			cfg.Format = JSONFormat
			cfg.Rotation.Type = rt

			l, err := New(cfg)
			require.NoError(t, err)
			l.Info("written to file", "n", 1)
			_ = l.Sync()

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"msg":"written to file"`)
		})
	}
}

func TestThrottled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l, err := New(nil, WithCore(core))
	require.NoError(t, err)

	th := NewThrottled(l, time.Hour, 2)
	assert.True(t, th.Warn("accept failed"))
	assert.True(t, th.Error("accept failed"))
	assert.False(t, th.Warn("accept failed"))
	assert.Equal(t, 2, logs.Len())
}

func TestNoopAndDefault(t *testing.T) {
	n := NewNoop()
	n.Info("ignored")
	assert.Same(t, n, n.Named("x"))
	assert.Same(t, n, n.WithFields("k", "v"))
	assert.NoError(t, n.Sync())

	assert.Same(t, n, OrNoop(n))
	assert.IsType(t, &NoopLogger{}, OrNoop(nil))

	prev := Default()
	defer SetDefault(prev)

	SetDefault(n)
	assert.Same(t, n, Default())
	assert.Same(t, n, Named("lb"))
}
