package app

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix 环境变量前缀，balancer.port 对应 XDOORIA_LB_BALANCER_PORT
	EnvPrefix = "XDOORIA_LB"
	// EnvConfigPath 未指定 --config 时使用的配置文件路径
	EnvConfigPath = EnvPrefix + "_CONFIG"
)

var resolved struct {
	sync.RWMutex
	config string
	log    string
}

// LoadConfig 从命令行参数加载配置到 target。
// 优先级：显式命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadConfig(target any, opts ...config.Option) error {
	return LoadConfigFrom(pflag.CommandLine, os.Args[1:], target, opts...)
}

// LoadConfigFrom 与 LoadConfig 相同，但使用给定的 FlagSet 和参数
func LoadConfigFrom(fs *pflag.FlagSet, args []string, target any, opts ...config.Option) error {
	dir, err := GetExecDir()
	if err != nil {
		return errors.Wrap(err, "app: get executable directory")
	}
	defaultLog := filepath.Join(dir, "logs", "lb.log")

	if fs.Lookup("config") == nil {
		fs.StringP("config", "c", filepath.Join(dir, "config.yaml"), "path to config file")
	}
	if fs.Lookup("log.path") == nil {
		fs.String("log.path", defaultLog, "log file path, overrides log.output_path")
	}
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return errors.Wrap(err, "app: parse flags")
		}
	}

	path, _ := fs.GetString("config")
	if !fs.Changed("config") {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path = env
		}
	}

	v := viper.New()
	v.SetDefault("log.output_path", defaultLog)
	v.SetDefault("log.enable_file", true)
	if fs.Changed("log.path") {
		lp, _ := fs.GetString("log.path")
		v.Set("log.output_path", lp)
	}

	mgr := config.NewManager(append([]config.Option{
		config.WithViper(v),
		config.WithEnvPrefix(EnvPrefix),
	}, opts...)...)
	if err := mgr.LoadFile(path); err != nil {
		return errors.Wrap(err, "app: load config")
	}
	if err := mgr.Unmarshal(target); err != nil {
		return errors.Wrap(err, "app: unmarshal config")
	}

	logPath := v.GetString("log.output_path")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return errors.Wrapf(err, "app: create log directory for %s", logPath)
	}

	resolved.Lock()
	resolved.config, resolved.log = path, logPath
	resolved.Unlock()
	return nil
}

// GetExecDir 可执行文件所在目录，解析符号链接
func GetExecDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolvedExe, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolvedExe
	}
	return filepath.Dir(exe), nil
}

// GetConfigPath 最近一次加载使用的配置文件
func GetConfigPath() string {
	resolved.RLock()
	defer resolved.RUnlock()
	return resolved.config
}

// GetLogPath 最近一次加载后生效的日志路径
func GetLogPath() string {
	resolved.RLock()
	defer resolved.RUnlock()
	return resolved.log
}
