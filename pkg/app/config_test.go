package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFileConfig struct {
	Log struct {
		EnableFile bool   `mapstructure:"enable_file"`
		OutputPath string `mapstructure:"output_path"`
	} `mapstructure:"log"`
	Balancer struct {
		Port     int    `mapstructure:"port"`
		Strategy string `mapstructure:"strategy"`
	} `mapstructure:"balancer"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newFlags() *pflag.FlagSet {
	return pflag.NewFlagSet("lb", pflag.ContinueOnError)
}

const testYAML = `
balancer:
  port: 8088
  strategy: Queue
`

func TestLoadConfigFrom_Flags(t *testing.T) {
	path := writeConfig(t, testYAML)
	logPath := filepath.Join(t.TempDir(), "nested", "lb.log")

	var cfg testFileConfig
	require.NoError(t, LoadConfigFrom(newFlags(), []string{"-c", path, "--log.path", logPath}, &cfg))

	assert.Equal(t, 8088, cfg.Balancer.Port)
	assert.Equal(t, "Queue", cfg.Balancer.Strategy)
	assert.True(t, cfg.Log.EnableFile)
	assert.Equal(t, logPath, cfg.Log.OutputPath)
	assert.DirExists(t, filepath.Dir(logPath))
	assert.Equal(t, path, GetConfigPath())
	assert.Equal(t, logPath, GetLogPath())
}

func TestLoadConfigFrom_Env(t *testing.T) {
	path := writeConfig(t, testYAML+"log:\n  output_path: "+filepath.Join(t.TempDir(), "lb.log")+"\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvPrefix+"_BALANCER_PORT", "9000")

	var cfg testFileConfig
	require.NoError(t, LoadConfigFrom(newFlags(), nil, &cfg))

	assert.Equal(t, 9000, cfg.Balancer.Port)
	assert.Equal(t, path, GetConfigPath())
}

func TestLoadConfigFrom_FlagBeatsEnvPath(t *testing.T) {
	path := writeConfig(t, testYAML+"log:\n  output_path: "+filepath.Join(t.TempDir(), "lb.log")+"\n")
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))

	var cfg testFileConfig
	require.NoError(t, LoadConfigFrom(newFlags(), []string{"--config", path}, &cfg))
	assert.Equal(t, 8088, cfg.Balancer.Port)
}

func TestLoadConfigFrom_Errors(t *testing.T) {
	var cfg testFileConfig

	err := LoadConfigFrom(newFlags(), []string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}, &cfg)
	assert.ErrorIs(t, err, config.ErrConfigFileNotFound)

	err = LoadConfigFrom(newFlags(), []string{"--no-such-flag"}, &cfg)
	assert.ErrorContains(t, err, "app: parse flags")

	bad := writeConfig(t, "balancer: [1, 2\n")
	err = LoadConfigFrom(newFlags(), []string{"-c", bad}, &cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfigFormat)
}
