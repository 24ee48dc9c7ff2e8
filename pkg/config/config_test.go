package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Weight   int    `mapstructure:"weight"`
	Disabled bool   `mapstructure:"disabled"`
}

type balancerConfig struct {
	Port       int            `mapstructure:"port" validate:"gte=0,lte=65535"`
	Timeout    int            `mapstructure:"timeout" validate:"gte=-1"`
	Strategy   string         `mapstructure:"strategy" validate:"omitempty,oneof=Queue IPQueue Custom"`
	ExtendData map[string]any `mapstructure:"extend_data"`
	Nodes      []nodeConfig   `mapstructure:"nodes" validate:"min=1,dive"`
}

type fileConfig struct {
	Balancer balancerConfig `mapstructure:"balancer"`
}

const sampleYAML = `
balancer:
  port: 8088
  timeout: 5
  strategy: Queue
  extend_data:
    affinity_seconds: 30
  nodes:
    - {host: 10.0.0.1, port: 80, weight: 3}
    - host: 10.0.0.2
      port: 80
`

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestManager_LoadAndUnmarshal(t *testing.T) {
	path := writeFile(t, t.TempDir(), sampleYAML)

	mgr := NewManager(WithDefaults(map[string]any{"balancer.recovery_times": 600}))
	require.NoError(t, mgr.LoadFile(path))

	var cfg fileConfig
	require.NoError(t, mgr.Unmarshal(&cfg))
	assert.Equal(t, 8088, cfg.Balancer.Port)
	require.Len(t, cfg.Balancer.Nodes, 2)
	assert.Equal(t, 3, cfg.Balancer.Nodes[0].Weight)

	var port int
	require.NoError(t, mgr.UnmarshalKey("balancer.port", &port))
	assert.Equal(t, 8088, port)

	assert.Equal(t, "Queue", mgr.GetString("balancer.strategy"))
	assert.Equal(t, 5, mgr.GetInt("balancer.timeout"))
	assert.False(t, mgr.GetBool("balancer.allow_remote_manage"))
	assert.Equal(t, 600, mgr.Get("balancer.recovery_times"))
	assert.True(t, mgr.IsSet("balancer.nodes"))
	assert.Contains(t, mgr.AllSettings(), "balancer")
}

func TestManager_Errors(t *testing.T) {
	mgr := NewManager()
	assert.ErrorIs(t, mgr.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")), ErrConfigFileNotFound)

	path := writeFile(t, t.TempDir(), "balancer: [unterminated")
	assert.ErrorIs(t, mgr.LoadFile(path), ErrInvalidConfigFormat)
}

func TestManager_EnvOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), sampleYAML)
	t.Setenv("LBTEST_BALANCER_TIMEOUT", "-1")

	mgr := NewManager()
	mgr.BindEnv("LBTEST")
	require.NoError(t, mgr.LoadFile(path))
	assert.Equal(t, -1, mgr.GetInt("balancer.timeout"))
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, sampleYAML)

	w, err := NewWatcher[fileConfig](path)
	require.NoError(t, err)
	assert.False(t, w.GetConfig().Balancer.Nodes[1].Disabled)

	disabled := func(c *fileConfig) bool {
		return len(c.Balancer.Nodes) == 2 && c.Balancer.Nodes[1].Disabled
	}

	changed := make(chan struct{}, 1)
	w.OnChange(func(c *fileConfig) {
		// 写文件可能触发多次事件，中间状态可能是空文件
		if disabled(c) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})
	w.OnError(func(error) {})

	updated := sampleYAML + "      disabled: true\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-changed:
		assert.True(t, disabled(w.GetConfig()))
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatcher_CloseStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, sampleYAML)

	w, err := NewWatcher[fileConfig](path)
	require.NoError(t, err)

	var calls int
	w.OnChange(func(*fileConfig) { calls++ })
	w.OnError(func(error) { calls++ })
	before := w.GetConfig()

	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"      disabled: true\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	w.reload()

	assert.Zero(t, calls)
	assert.Same(t, before, w.GetConfig())
	assert.NoError(t, w.Close())
}

func TestMergeConfig(t *testing.T) {
	defaults := &balancerConfig{Port: 8088, Timeout: 5, Strategy: "Queue", ExtendData: map[string]any{"a": 1}}
	merged, err := MergeConfig(defaults, &balancerConfig{
		Timeout:    -1,
		ExtendData: map[string]any{"b": 2},
		Nodes:      []nodeConfig{{Host: "h", Port: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, 8088, merged.Port)
	assert.Equal(t, -1, merged.Timeout)
	assert.Equal(t, "Queue", merged.Strategy)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged.ExtendData)
	assert.Len(t, merged.Nodes, 1)

	only, err := MergeConfig(nil, defaults)
	require.NoError(t, err)
	assert.Same(t, defaults, only)

	_, err = MergeConfig[balancerConfig](nil, nil)
	assert.Error(t, err)
}

func TestDecodeMap(t *testing.T) {
	var opts struct {
		AffinitySeconds int           `mapstructure:"affinity_seconds"`
		Window          time.Duration `mapstructure:"window"`
	}

	require.NoError(t, DecodeMap(map[string]any{"affinity_seconds": "60", "window": "30s"}, &opts))
	assert.Equal(t, 60, opts.AffinitySeconds)
	assert.Equal(t, 30*time.Second, opts.Window)

	assert.NoError(t, DecodeMap(nil, &opts))
	assert.ErrorIs(t, DecodeMap(map[string]any{"a": 1}, nil), ErrNilConfig)
	assert.ErrorIs(t, DecodeMap(map[string]any{"affinity_seconds": "soon"}, &opts), ErrInvalidConfigFormat)
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	valid := &balancerConfig{Strategy: "Queue", Nodes: []nodeConfig{{Host: "h", Port: 80}}}
	assert.NoError(t, v.Validate(valid))
	assert.NotPanics(t, func() { v.MustValidate(valid) })
	assert.ErrorIs(t, v.Validate(nil), ErrNilConfig)

	tests := []struct {
		name    string
		cfg     *balancerConfig
		message string
	}{
		{"no nodes", &balancerConfig{}, "balancerConfig.Nodes must be at least 1"},
		{"bad timeout", &balancerConfig{Timeout: -2, Nodes: valid.Nodes}, "Timeout must be >= -1"},
		{"bad strategy", &balancerConfig{Strategy: "fastest", Nodes: valid.Nodes}, "must be one of"},
		{"bad node", &balancerConfig{Nodes: []nodeConfig{{Port: 0}}}, "balancerConfig.Nodes[0].Host is required"},
		{"bad port", &balancerConfig{Port: 70000, Nodes: valid.Nodes}, "Port must be <= 65535"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.cfg)
			require.ErrorIs(t, err, ErrValidationFailed)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	assert.Panics(t, func() { v.MustValidate(&balancerConfig{}) })

	assert.NoError(t, v.ValidateField("127.0.0.1:8088", "hostname_port"))
	assert.ErrorIs(t, v.ValidateField("nope", "hostname_port"), ErrValidationFailed)

	assert.NoError(t, v.ValidateField("backend-1:9000", "endpoint"))
	for _, bad := range []string{"backend-1:0", ":9000", "backend-1:http", "backend-1"} {
		assert.ErrorIs(t, v.ValidateField(bad, "endpoint"), ErrValidationFailed, bad)
	}
}

func TestValidator_Custom(t *testing.T) {
	v := NewValidator()
	type weighted struct {
		Weight int `validate:"weight"`
	}
	rules := map[string]validator.Func{
		"weight": func(fl validator.FieldLevel) bool { return fl.Field().Int() >= 1 },
	}

	assert.NoError(t, v.ValidateWithCustom(&weighted{Weight: 3}, rules))
	assert.ErrorIs(t, v.ValidateWithCustom(&weighted{Weight: 0}, rules), ErrValidationFailed)
}
